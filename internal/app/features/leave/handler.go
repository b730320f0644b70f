// internal/app/features/leave/handler.go
package leave

import (
	"context"
	"net/http"

	"github.com/dalemusser/organizer/internal/app/system/timeouts"
	"github.com/dalemusser/organizer/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type MemberLeaver interface {
	LeaveBySlug(ctx context.Context, slug string) (*models.Member, error)
}

type PersonUpdater interface {
	ClearCurrentContextIf(ctx context.Context, personID, contextID int64) error
}

type ContextReader interface {
	GetByID(ctx context.Context, id int64) (*models.Context, error)
}

type Handler struct {
	Members  MemberLeaver
	Persons  PersonUpdater
	Contexts ContextReader
	Log      *zap.Logger
}

func NewHandler(members MemberLeaver, persons PersonUpdater, contexts ContextReader, logger *zap.Logger) *Handler {
	return &Handler{Members: members, Persons: persons, Contexts: contexts, Log: logger}
}

// ServeLeave handles GET /leave/{slug}, the link carried by every
// notification email. It needs no session: the slug identifies the member.
func (h *Handler) ServeLeave(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		http.NotFound(w, r)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "leave")
	defer cancel()

	m, err := h.Members.LeaveBySlug(ctx, slug)
	if err != nil {
		h.Log.Error("leave: deactivate member", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if m == nil {
		http.NotFound(w, r)
		return
	}
	log := h.Log.With(zap.Int64("member_id", m.ID), zap.Int64("person_id", m.PersonID), zap.Int64("context_id", m.ContextID))

	// The membership is already inactive; the rest is cosmetic.
	if err := h.Persons.ClearCurrentContextIf(ctx, m.PersonID, m.ContextID); err != nil {
		log.Warn("leave: clear current context", zap.Error(err))
	}

	c, err := h.Contexts.GetByID(ctx, m.ContextID)
	if err != nil || c == nil {
		if err != nil {
			log.Warn("leave: load context", zap.Error(err))
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	log.Info("member left context")
	http.Redirect(w, r, "/group/"+c.Slug, http.StatusSeeOther)
}
