package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/localnative/localnative/internal/command"
	"github.com/localnative/localnative/internal/models"
	"github.com/localnative/localnative/internal/notes"
)

const (
	defaultLimit = 10
	maxBodyBytes = 10 << 20
)

// Handler holds API route handlers.
type Handler struct {
	engine *command.Engine
	notes  *notes.Service
}

// NewHandler creates a new Handler.
func NewHandler(engine *command.Engine) *Handler {
	return &Handler{engine: engine, notes: engine.Notes()}
}

// params reads q, from, to, limit and offset from the query string.
func params(r *http.Request) notes.Params {
	q := r.URL.Query()
	limit, err := strconv.ParseInt(q.Get("limit"), 10, 64)
	if err != nil {
		limit = defaultLimit
	}
	offset, _ := strconv.ParseInt(q.Get("offset"), 10, 64)
	return notes.Params{
		Query:  q.Get("q"),
		From:   q.Get("from"),
		To:     q.Get("to"),
		Limit:  limit,
		Offset: offset,
	}
}

// Cmd handles POST /api/cmd.
//
//	@Summary		Execute a command envelope
//	@Tags			commands
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	QueryResult
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cmd [post]
func (h *Handler) Cmd(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("body too large"))
		return
	}
	resp := h.engine.Execute(r.Context(), body)
	if e, ok := resp.(command.ErrorResponse); ok {
		writeJSON(w, statusFor(e.Kind), e)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes newest first with count and histograms
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	QueryResult
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	p := params(r)
	p.Query, p.From, p.To = "", "", ""
	res, err := h.notes.Result(r.Context(), p)
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetNote handles GET /api/notes/{uuid4}.
//
//	@Summary		Get a single note by uuid4
//	@Tags			notes
//	@Produce		json
//	@Param			uuid4	path		string	true	"Note identifier"
//	@Success		200		{object}	Note
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{uuid4} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.notes.GetByUUID4(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	n, err := h.notes.Insert(r.Context(), models.Note{
		Title:       req.Title,
		URL:         req.URL,
		Tags:        req.Tags,
		Description: req.Description,
		Comments:    req.Comments,
		Annotations: []byte(req.Annotations),
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// DeleteNote handles DELETE /api/notes/{rowid}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			rowid	path	int	true	"Note row id"
//	@Success		204		"Note deleted"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{rowid} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	rowid, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("rowid must be an integer"))
		return
	}
	if err := h.notes.Delete(r.Context(), rowid); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Substring search across title, url, tags and description
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	false	"Whitespace separated terms, all must match"
//	@Param			from	query		string	false	"First day, YYYY-MM-DD"
//	@Param			to		query		string	false	"Last day, YYYY-MM-DD"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	QueryResult
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	res, err := h.notes.Result(r.Context(), params(r))
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Tags handles GET /api/tags.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	p := params(r)
	counts, err := h.notes.HistogramByTag(r.Context(), p.Query, p.From, p.To)
	if err != nil {
		writeError(w, "tags", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": notes.SortTags(counts)})
}

// Days handles GET /api/days.
func (h *Handler) Days(w http.ResponseWriter, r *http.Request) {
	p := params(r)
	days, err := h.notes.HistogramByDay(r.Context(), p.Query, p.From, p.To)
	if err != nil {
		writeError(w, "days", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

// Attach handles POST /api/sync/attach.
//
//	@Summary		Merge another store file into the local store
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body	AttachRequest	true	"Store file to merge"
//	@Success		200
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/attach [post]
func (h *Handler) Attach(w http.ResponseWriter, r *http.Request) {
	var req AttachRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.URI == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("uri is required"))
		return
	}
	stats, err := h.notes.SyncViaAttach(r.Context(), req.URI)
	if err != nil {
		writeError(w, "sync via attach", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sync-via-attach-done": req.URI,
		"stats":                stats,
	})
}

// Version handles GET /api/version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	v, err := h.notes.Version(r.Context())
	if err != nil {
		writeError(w, "version", err)
		return
	}
	writeJSON(w, http.StatusOK, VersionResponse{Version: v})
}
