package api

import (
	"net/http"

	"github.com/localnative/localnative/internal/inbox"
)

const maxUploadBytes = 512 << 20 // 512 MB

// UploadHandler accepts store files and merges them through the inbox.
type UploadHandler struct {
	inbox *inbox.Inbox
}

// NewUploadHandler creates a handler writing into in's directory.
func NewUploadHandler(in *inbox.Inbox) *UploadHandler {
	return &UploadHandler{inbox: in}
}

// Upload handles POST /api/sync/upload (multipart/form-data, field "file").
//
//	@Summary		Upload a store file and merge it
//	@Tags			sync
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"*.sqlite3 store file"
//	@Success		200		{object}	UploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/upload [post]
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	if _, err := h.inbox.Dir().Path(header.Filename); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if _, err := h.inbox.Dir().Write(header.Filename, file); err != nil {
		writeError(w, "upload", err)
		return
	}

	res, err := h.inbox.Process(r.Context(), header.Filename)
	if err != nil {
		writeError(w, "merge upload", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
