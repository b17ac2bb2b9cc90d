package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/courseadvisor/internal/apperrors"
	"github.com/nkiryanov/courseadvisor/internal/handlers/authctx"
	"github.com/nkiryanov/courseadvisor/internal/handlers/render"
	"github.com/nkiryanov/courseadvisor/internal/logger"
)

type ChatHandler struct {
	service chatService
	logger  logger.Logger
}

func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	type ChatRequest struct {
		Message string `json:"message" validate:"required,notblank,max=4000"`
	}
	type ChatSuccessResponse struct {
		Reply string `json:"reply"`
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		render.ServiceError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Must always be set cause auth middleware wraps the handler
	claims, ok := authctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := render.BindAndValidate[ChatRequest](w, r)
	if err != nil {
		return
	}

	turn, err := h.service.Reply(r.Context(), claims, data.Message)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrTokenMissing),
			errors.Is(err, apperrors.ErrTokenInvalid),
			errors.Is(err, apperrors.ErrTokenExpired):
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		default:
			h.logger.Error("Chat failed", "state", turn.State, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, ChatSuccessResponse{Reply: turn.Reply})
}
