package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/localnative/localnative/internal/command"
	"github.com/localnative/localnative/internal/inbox"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// in, if non-nil, enables store file uploads.
func NewRouter(engine *command.Engine, authEnabled bool, token string, sseHandler http.Handler, in *inbox.Inbox) chi.Router {
	h := NewHandler(engine)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Command envelope, same contract as the native-messaging host.
	r.Post("/cmd", h.Cmd)

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Delete("/notes/{id}", h.DeleteNote)

	// Search and aggregations.
	r.Get("/search", h.Search)
	r.Get("/tags", h.Tags)
	r.Get("/days", h.Days)

	// Sync.
	r.Post("/sync/attach", h.Attach)
	if in != nil {
		r.Post("/sync/upload", NewUploadHandler(in).Upload)
	}

	r.Get("/version", h.Version)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
