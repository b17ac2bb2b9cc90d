package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/courseadvisor/internal/apperrors"
	"github.com/nkiryanov/courseadvisor/internal/models"
	"github.com/nkiryanov/courseadvisor/internal/service/auth/tokenmanager"
)

func Test_ChatHandler(t *testing.T) {
	t.Parallel()

	as := newAuthService(t, "universal")
	token, err := as.Login(t.Context(), "universal")
	require.NoError(t, err)
	bearer := http.Header{"Authorization": {"Bearer " + token.Value}}

	echo := func(calls *atomic.Int32) chatFunc {
		return func(ctx context.Context, claims models.AuthClaims, message string) (models.ConversationTurn, error) {
			calls.Add(1)
			return models.ConversationTurn{Message: message, Reply: "you said: " + message, State: models.StateDone}, nil
		}
	}

	t.Run("chat ok", func(t *testing.T) {
		var calls atomic.Int32
		var gotClaims models.AuthClaims
		cs := chatFunc(func(ctx context.Context, claims models.AuthClaims, message string) (models.ConversationTurn, error) {
			gotClaims = claims
			return echo(&calls)(ctx, claims, message)
		})
		url := newServer(t, as, cs, RouterConfig{})

		resp, body := do(t, http.MethodPost, url+"/chat", bearer, `{"message": "What CS courses are there?"}`)

		require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
		require.JSONEq(t, `{"reply": "you said: What CS courses are there?"}`, body)
		require.EqualValues(t, 1, calls.Load())
		require.True(t, gotClaims.Authenticated, "claims have to be passed to chat service")
		require.NotEmpty(t, gotClaims.TokenID)
	})

	t.Run("unauthorized never reaches chat", func(t *testing.T) {
		expiredManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret", AccessTTL: time.Nanosecond})
		require.NoError(t, err)
		expired, err := expiredManager.Issue()
		require.NoError(t, err)
		time.Sleep(time.Second + 10*time.Millisecond)

		otherKey, err := tokenmanager.New(tokenmanager.Config{SecretKey: "other-secret"})
		require.NoError(t, err)
		forged, err := otherKey.Issue()
		require.NoError(t, err)

		tests := []struct {
			name   string
			header http.Header
		}{
			{"no header", nil},
			{"empty bearer", http.Header{"Authorization": {"Bearer "}}},
			{"garbage", http.Header{"Authorization": {"Bearer garbage"}}},
			{"other scheme", http.Header{"Authorization": {"Token " + token.Value}}},
			{"expired", http.Header{"Authorization": {"Bearer " + expired.Value}}},
			{"other key", http.Header{"Authorization": {"Bearer " + forged.Value}}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var calls atomic.Int32
				url := newServer(t, as, echo(&calls), RouterConfig{})

				for _, method := range []string{http.MethodPost, http.MethodGet} {
					resp, body := do(t, method, url+"/chat", tt.header, `{"message": "hi"}`)

					require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
					require.JSONEq(t, `{"error": "service_error", "message": "Unauthorized"}`, body)
				}
				require.Zero(t, calls.Load(), "chat service must not be called")
			})
		}
	})

	t.Run("method not allowed after auth", func(t *testing.T) {
		var calls atomic.Int32
		url := newServer(t, as, echo(&calls), RouterConfig{})

		resp, body := do(t, http.MethodGet, url+"/chat", bearer, "")

		require.Equalf(t, http.StatusMethodNotAllowed, resp.StatusCode, "not expected code. Body: %s", body)
		require.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
		require.Zero(t, calls.Load())
	})

	t.Run("message missing", func(t *testing.T) {
		var calls atomic.Int32
		url := newServer(t, as, echo(&calls), RouterConfig{})

		for _, data := range []string{`{}`, `{"message": ""}`, `{"message": "   "}`} {
			resp, body := do(t, http.MethodPost, url+"/chat", bearer, data)

			require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "validation_failed",
					"message": "Request validation failed",
					"fields": {"message": "This field is required"}
				}`, body)
		}
		require.Zero(t, calls.Load())
	})

	t.Run("message too long", func(t *testing.T) {
		var calls atomic.Int32
		url := newServer(t, as, echo(&calls), RouterConfig{})

		resp, _ := do(t, http.MethodPost, url+"/chat", bearer, `{"message": "`+strings.Repeat("a", 4001)+`"}`)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Zero(t, calls.Load())
	})

	t.Run("service failures are internal errors", func(t *testing.T) {
		for _, chatErr := range []error{
			fmt.Errorf("%w. Err: connection refused", apperrors.ErrModelUnavailable),
			fmt.Errorf("tool failed. Err: %w", apperrors.ErrDatasetUnavailable),
			errors.New("something unexpected"),
		} {
			cs := chatFunc(func(ctx context.Context, claims models.AuthClaims, message string) (models.ConversationTurn, error) {
				return models.ConversationTurn{State: models.StateFailed}, chatErr
			})
			url := newServer(t, as, cs, RouterConfig{})

			resp, body := do(t, http.MethodPost, url+"/chat", bearer, `{"message": "hi"}`)

			require.Equalf(t, http.StatusInternalServerError, resp.StatusCode, "not expected code. Body: %s", body)
			assert.JSONEq(t, `{"error": "service_error", "message": "Internal server error"}`, body, "error details must not leak")
		}
	})

	t.Run("expired during request", func(t *testing.T) {
		cs := chatFunc(func(ctx context.Context, claims models.AuthClaims, message string) (models.ConversationTurn, error) {
			return models.ConversationTurn{State: models.StateFailed}, apperrors.ErrTokenExpired
		})
		url := newServer(t, as, cs, RouterConfig{})

		resp, _ := do(t, http.MethodPost, url+"/chat", bearer, `{"message": "hi"}`)

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("concurrency per token", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		cs := chatFunc(func(ctx context.Context, claims models.AuthClaims, message string) (models.ConversationTurn, error) {
			entered <- struct{}{}
			<-release
			return models.ConversationTurn{Reply: "done"}, nil
		})
		url := newServer(t, as, cs, RouterConfig{MaxConcurrentPerToken: 1})

		firstDone := make(chan int)
		go func() {
			req, _ := http.NewRequest(http.MethodPost, url+"/chat", strings.NewReader(`{"message": "hi"}`))
			req.Header.Set("Authorization", "Bearer "+token.Value)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				firstDone <- 0
				return
			}
			_ = resp.Body.Close()
			firstDone <- resp.StatusCode
		}()
		<-entered

		resp, _ := do(t, http.MethodPost, url+"/chat", bearer, `{"message": "hi again"}`)
		require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

		close(release)
		require.Equal(t, http.StatusOK, <-firstDone)
	})
}
