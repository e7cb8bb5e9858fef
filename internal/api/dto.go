package api

import (
	"github.com/localnative/localnative/internal/inbox"
	"github.com/localnative/localnative/internal/models"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title       string `json:"title" example:"Local Native" validate:"required"`
	URL         string `json:"url" example:"https://localnative.app"`
	Tags        string `json:"tags" example:"notes,sync"`
	Description string `json:"description" example:"cross-device bookmarks"`
	Comments    string `json:"comments"`
	Annotations string `json:"annotations"`
	IsPublic    bool   `json:"is_public"`
}

// Note is the note response type (aliased from the domain layer).
type Note = models.Note

// QueryResult is a page of notes with its count and histograms.
type QueryResult = models.QueryResult

// KV is one histogram bucket.
type KV = models.KV

// AttachRequest names a store file to merge.
type AttachRequest struct {
	URI string `json:"uri" example:"/home/me/LocalNative/phone.sqlite3" validate:"required"`
}

// VersionResponse reports the schema version of the local store.
type VersionResponse struct {
	Version string `json:"version" example:"0.5.0" validate:"required"`
}

// UploadResponse is returned after an uploaded store file was merged.
type UploadResponse = inbox.Result
