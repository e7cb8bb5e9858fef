// Package notes implements note operations and aggregations on top of the store.
package notes

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/localnative/localnative/internal/apperr"
	"github.com/localnative/localnative/internal/models"
	"github.com/localnative/localnative/internal/query"
	"github.com/localnative/localnative/internal/store"
	"github.com/localnative/localnative/internal/tags"
)

// TimeLayout is the created_at format: UTC with fixed-width nanoseconds so
// that lexical order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// ImageDataURLPrefix precedes the base64 payload of image annotations.
const ImageDataURLPrefix = "data:image/png;base64,"

// MaxNoteBytes caps the summed size of a note's text fields and annotations.
// Sync messages are sized to carry any note under this cap.
const MaxNoteBytes = 8 << 20

// Event kinds passed to an EventCallback.
const (
	EventInserted = "inserted"
	EventDeleted  = "deleted"
	EventSynced   = "synced"
)

// EventCallback is called after every committed write. For EventSynced the
// note only carries the merged source in URL.
type EventCallback func(kind string, n models.Note)

// Service exposes note operations.
type Service struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
	last   atomic.Pointer[models.Note]
	cb     atomic.Pointer[EventCallback]
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock overrides the clock used to stamp created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service backed by st.
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnEvent registers cb for write notifications, replacing any previous one.
func (s *Service) OnEvent(cb EventCallback) {
	s.cb.Store(&cb)
}

// LastInsert returns the most recently inserted note.
func (s *Service) LastInsert() (models.Note, bool) {
	n := s.last.Load()
	if n == nil {
		return models.Note{}, false
	}
	return *n, true
}

// Store returns the underlying store.
func (s *Service) Store() *store.Store {
	return s.store
}

// Insert stores n, generating uuid4 and created_at when absent and
// normalizing tags. Inserting a uuid4 that already exists is a no-op that
// returns the stored row id.
func (s *Service) Insert(ctx context.Context, n models.Note) (models.Note, error) {
	var ann any = n.Annotations
	if utf8.Valid(n.Annotations) {
		ann = string(n.Annotations)
	}
	return s.insert(ctx, n, ann)
}

// InsertImage decodes a data:image/png;base64 URL and stores the raw PNG
// bytes as the note's annotations.
func (s *Service) InsertImage(ctx context.Context, n models.Note, dataURL string) (models.Note, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, ImageDataURLPrefix))
	if err != nil {
		return models.Note{}, fmt.Errorf("notes: insert image: %w: %w", apperr.ErrBadImage, err)
	}
	n.Annotations = raw
	return s.insert(ctx, n, raw)
}

func (s *Service) insert(ctx context.Context, n models.Note, annotations any) (models.Note, error) {
	if size := noteSize(n); size > MaxNoteBytes {
		return models.Note{}, fmt.Errorf("notes: insert: %d bytes exceeds %d: %w", size, MaxNoteBytes, apperr.ErrNoteTooLarge)
	}
	if n.UUID4 == "" {
		n.UUID4 = uuid.NewString()
	}
	if n.CreatedAt == "" {
		n.CreatedAt = s.now().UTC().Format(TimeLayout)
	}
	n.Tags = tags.Normalize(n.Tags)

	inserted := false
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.DBTX) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO note (uuid4, title, url, tags, description, comments, annotations, created_at, is_public)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(uuid4) DO NOTHING`,
			n.UUID4, n.Title, n.URL, n.Tags, n.Description, n.Comments, annotations, n.CreatedAt, n.IsPublic)
		if err != nil {
			return fmt.Errorf("notes: insert: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("notes: insert: %w", err)
		}
		if affected == 0 {
			err := tx.QueryRowContext(ctx, `SELECT rowid FROM note WHERE uuid4 = ?`, n.UUID4).Scan(&n.RowID)
			if err != nil {
				return fmt.Errorf("notes: lookup existing: %w", err)
			}
			return nil
		}
		inserted = true
		n.RowID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return models.Note{}, err
	}
	if !inserted {
		s.logger.Debug("note already present", slog.Int64("rowid", n.RowID), slog.String("uuid4", n.UUID4))
		return n, nil
	}

	s.last.Store(&n)
	s.notify(EventInserted, n)
	s.logger.Debug("note inserted", slog.Int64("rowid", n.RowID), slog.String("uuid4", n.UUID4))
	return n, nil
}

func noteSize(n models.Note) int {
	return len(n.UUID4) + len(n.Title) + len(n.URL) + len(n.Tags) + len(n.Description) +
		len(n.Comments) + len(n.Annotations) + len(n.CreatedAt)
}

// Delete removes the note with rowid. Deleting a missing row is not an error.
func (s *Service) Delete(ctx context.Context, rowid int64) error {
	var affected int64
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.DBTX) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM note WHERE rowid = ?`, rowid)
		if err != nil {
			return fmt.Errorf("notes: delete: %w", err)
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if affected > 0 {
		s.notify(EventDeleted, models.Note{RowID: rowid})
	}
	return nil
}

// GetByUUID4 returns the note with the given uuid4.
func (s *Service) GetByUUID4(ctx context.Context, id string) (models.Note, error) {
	var n models.Note
	err := s.store.WithReadTx(ctx, func(ctx context.Context, tx store.DBTX) error {
		row := tx.QueryRowContext(ctx, `SELECT `+query.Columns+` FROM note WHERE uuid4 = ?`, id)
		var err error
		n, err = scanNote(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("notes: uuid4 %s: %w", id, apperr.ErrNotFound)
		}
		return err
	})
	return n, err
}

// Version returns the local schema version.
func (s *Service) Version(ctx context.Context) (string, error) {
	return s.store.SchemaVersion(ctx)
}

func (s *Service) notify(kind string, n models.Note) {
	if cb := s.cb.Load(); cb != nil && *cb != nil {
		(*cb)(kind, n)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(r scanner) (models.Note, error) {
	var n models.Note
	err := r.Scan(&n.RowID, &n.UUID4, &n.Title, &n.URL, &n.Tags, &n.Description,
		&n.Comments, &n.Annotations, &n.CreatedAt, &n.IsPublic)
	return n, err
}
