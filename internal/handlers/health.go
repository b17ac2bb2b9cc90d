package handlers

import (
	"net/http"

	"github.com/nkiryanov/courseadvisor/internal/handlers/render"
)

type HealthHandler struct {
	courses courseCounter
}

func (h *HealthHandler) health(w http.ResponseWriter, r *http.Request) {
	type HealthResponse struct {
		Status  string `json:"status"`
		Courses int    `json:"courses"`
	}

	render.JSON(w, HealthResponse{Status: "ok", Courses: h.courses.Len()})
}
