// Package chat answers a student message in at most two model passes.
//
// The first pass lets the model either answer or ask for a tool. When a known
// tool is asked for, its result is sent back to the model in the second pass
// and the second answer is the reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nkiryanov/courseadvisor/internal/apperrors"
	"github.com/nkiryanov/courseadvisor/internal/logger"
	"github.com/nkiryanov/courseadvisor/internal/models"
	"github.com/nkiryanov/courseadvisor/internal/service/interpreter"
	"github.com/nkiryanov/courseadvisor/internal/service/prompt"
)

const tracerName = "github.com/nkiryanov/courseadvisor/internal/service/chat"

type Model interface {
	Complete(ctx context.Context, system string, user string) (string, error)
}

type Prompts interface {
	FirstPass(message string) (prompt.Prompt, error)
	SecondPass(message string, result string) (prompt.Prompt, error)
}

type Tools interface {
	Has(name string) bool
	Dispatch(ctx context.Context, call models.ToolCall) (string, error)
}

type Service struct {
	model   Model
	prompts Prompts
	tools   Tools

	logger logger.Logger
	tracer trace.Tracer

	// Clock, replaced in tests
	now func() time.Time
}

func NewService(model Model, prompts Prompts, tools Tools, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		model:   model,
		prompts: prompts,
		tools:   tools,
		logger:  l,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
}

// Reply handles one message of an authenticated client
// The model is never called unless claims are valid at the moment of the call
func (s *Service) Reply(ctx context.Context, claims models.AuthClaims, message string) (models.ConversationTurn, error) {
	turn := models.ConversationTurn{Message: message}
	l := s.logger.With("token_id", claims.TokenID)

	fail := func(err error) (models.ConversationTurn, error) {
		l.Debug("Turn failed", "state", turn.State, "error", err)
		turn.State = models.StateFailed
		return turn, err
	}
	enter := func(state models.TurnState) {
		l.Debug("Turn state", "from", turn.State, "to", state)
		turn.State = state
	}

	turn.State = models.StateAuthorizing
	switch {
	case !claims.Authenticated:
		return fail(apperrors.ErrTokenMissing)
	case !claims.Valid(s.now()):
		return fail(apperrors.ErrTokenExpired)
	}

	enter(models.StateFirstPass)
	first, err := s.prompts.FirstPass(message)
	if err != nil {
		return fail(err)
	}
	turn.FirstReply, err = s.complete(ctx, "first_pass", first)
	if err != nil {
		return fail(err)
	}

	enter(models.StateInterpreting)
	result := interpreter.Interpret(turn.FirstReply, s.tools.Has)
	if result.Kind == interpreter.PlainText {
		turn.Reply = turn.FirstReply
		enter(models.StateDone)
		return turn, nil
	}
	turn.ToolCall = &result.Call

	enter(models.StateToolDispatch)
	turn.ToolResult, err = s.tools.Dispatch(ctx, result.Call)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUnknownTool):
		turn.Reply = turn.FirstReply
		enter(models.StateDone)
		return turn, nil
	case errors.Is(err, apperrors.ErrDatasetUnavailable):
		return fail(err)
	default:
		l.Warn("Tool failed, continue with empty result", "tool", result.Call.Name, "error", err)
		turn.ToolResult = ""
	}

	enter(models.StateSecondPass)
	second, err := s.prompts.SecondPass(message, turn.ToolResult)
	if err != nil {
		return fail(err)
	}
	turn.Reply, err = s.complete(ctx, "second_pass", second)
	if err != nil {
		return fail(err)
	}

	enter(models.StateDone)
	return turn, nil
}

func (s *Service) complete(ctx context.Context, pass string, p prompt.Prompt) (string, error) {
	ctx, span := s.tracer.Start(ctx, "chat."+pass, trace.WithAttributes(attribute.String("chat.pass", pass)))
	defer span.End()

	reply, err := s.model.Complete(ctx, p.System, p.User)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")

		if !errors.Is(err, apperrors.ErrModelUnavailable) {
			err = fmt.Errorf("%w. Err: %w", apperrors.ErrModelUnavailable, err)
		}
		return "", err
	}

	span.SetAttributes(attribute.Int("chat.reply_length", len(reply)))
	return reply, nil
}
