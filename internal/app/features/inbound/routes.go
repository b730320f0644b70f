package inbound

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the webhook under its parent (typically /api). Middlewares
// such as a rate limiter apply to the webhook only.
func Routes(h *Handler, middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares...)
	r.Post("/reply", h.ServeReply)
	return r
}
