package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/courseadvisor/internal/apperrors"
	"github.com/nkiryanov/courseadvisor/internal/handlers/render"
	"github.com/nkiryanov/courseadvisor/internal/logger"
)

type AuthHandler struct {
	auth   authService
	logger logger.Logger
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Password string `json:"password" validate:"required"`
	}
	type LoginSuccessResponse struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	token, err := h.auth.Login(r.Context(), data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidSecret):
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrServerMisconfigured):
			h.logger.Error("Login is not possible, access secret is not configured")
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		default:
			h.logger.Error("Login failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.auth.SetToken(w, token)
	render.JSON(w, LoginSuccessResponse{Token: token.Value, ExpiresAt: token.ExpiresAt.UTC()})
}
