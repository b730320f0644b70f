// internal/app/features/inbound/handler.go
package inbound

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/dalemusser/organizer/internal/app/system/replies"
	"github.com/dalemusser/organizer/internal/app/system/timeouts"
	"github.com/dalemusser/organizer/internal/domain/models"
	"go.uber.org/zap"
)

// maxBody caps an inbound payload; parse webhooks include attachments.
const maxBody = 10 << 20

// Ingester processes one inbound reply.
type Ingester interface {
	Ingest(ctx context.Context, p replies.Payload) replies.Result
}

// Handler receives inbound reply emails from the mail provider.
type Handler struct {
	Replies Ingester
	Log     *zap.Logger
}

func NewHandler(ing Ingester, logger *zap.Logger) *Handler {
	return &Handler{Replies: ing, Log: logger}
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ServeReply handles POST /api/reply.
//
// The body is either JSON { "headers": "...", "text": "...", "html": "..." }
// or a multipart / urlencoded form with the same field names.
//
//	200 { "ok": true, "message_id": 101 }   reply posted
//	200 { "ok": true }                      stored but not attributable
//	200 { "ok": false }                     unparsable
//	400 { "ok": false, "error": "..." }     headers or body missing
//	500 { "ok": false }                     processing failed
func (h *Handler) ServeReply(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	p, err := decodePayload(r)
	if err != nil {
		h.Log.Info("inbound reply: bad request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed payload"})
		return
	}
	if strings.TrimSpace(p.Headers) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "headers is required"})
		return
	}
	if strings.TrimSpace(p.Text) == "" && strings.TrimSpace(p.HTML) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text or html is required"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "inbound reply")
	defer cancel()

	res := h.Replies.Ingest(ctx, p)
	status := http.StatusOK
	if res.Status == models.InboundFailed {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func decodePayload(r *http.Request) (replies.Payload, error) {
	var p replies.Payload
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mt {
	case "application/json":
		err := json.NewDecoder(r.Body).Decode(&p)
		return p, err
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBody); err != nil {
			return p, err
		}
	default:
		if err := r.ParseForm(); err != nil {
			return p, err
		}
	}
	p.Headers = r.FormValue("headers")
	p.Text = r.FormValue("text")
	p.HTML = r.FormValue("html")
	return p, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
