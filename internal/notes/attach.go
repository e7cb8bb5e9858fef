package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/localnative/localnative/internal/apperr"
	"github.com/localnative/localnative/internal/models"
	"github.com/localnative/localnative/internal/store"
)

// AttachVersionAdvice is reported when two store files differ in schema version.
const AttachVersionAdvice = "version may not match, upgrade both to latest version and try again"

// AttachStats counts the rows copied by SyncViaAttach in each direction.
type AttachStats struct {
	Pulled int64 `json:"pulled"` // other -> main
	Pushed int64 `json:"pushed"` // main -> other
}

const copyMissingSQL = `
INSERT INTO %[1]s.note (uuid4, title, url, tags, description, comments, annotations, created_at, is_public)
SELECT uuid4, title, url, tags, description, comments, annotations, created_at, is_public
FROM %[2]s.note
WHERE uuid4 NOT IN (SELECT uuid4 FROM %[1]s.note)
ORDER BY created_at`

// SyncViaAttach merges the store file at uri with the local store: rows
// missing on either side, by uuid4, are copied in one transaction.
func (s *Service) SyncViaAttach(ctx context.Context, uri string) (AttachStats, error) {
	var stats AttachStats

	if !strings.HasPrefix(uri, "file:") {
		if _, err := os.Stat(uri); err != nil {
			return stats, &apperr.SyncAttachError{URI: uri, Reason: "can not attach " + uri, Err: fmt.Errorf("%w: %w", apperr.ErrIO, err)}
		}
	}

	localVersion, err := s.store.SchemaVersion(ctx)
	if err != nil {
		return stats, &apperr.SyncAttachError{URI: uri, Reason: err.Error(), Err: err}
	}

	err = s.store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS other`, uri); err != nil {
			return &apperr.SyncAttachError{URI: uri, Reason: "can not attach " + uri, Err: err}
		}
		defer func() {
			if _, err := conn.ExecContext(context.WithoutCancel(ctx), `DETACH DATABASE other`); err != nil {
				s.logger.Warn("detach failed", slog.String("uri", uri), slog.String("error", err.Error()))
			}
		}()

		otherVersion, err := attachedVersion(ctx, conn)
		if err != nil {
			return &apperr.SyncAttachError{URI: uri, Reason: err.Error(), Err: err}
		}
		if !store.VersionsMatch(localVersion, otherVersion) {
			return &apperr.SyncAttachError{
				URI:    uri,
				Reason: fmt.Sprintf("local %s, other %s: %s", localVersion, otherVersion, AttachVersionAdvice),
				Err:    apperr.ErrVersionMismatch,
			}
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit

		res, err := tx.ExecContext(ctx, fmt.Sprintf(copyMissingSQL, "main", "other"))
		if err != nil {
			return &apperr.SyncAttachError{URI: uri, Reason: "copy into local store: " + err.Error(), Err: err}
		}
		stats.Pulled, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx, fmt.Sprintf(copyMissingSQL, "other", "main"))
		if err != nil {
			return &apperr.SyncAttachError{URI: uri, Reason: "copy into attached store: " + err.Error(), Err: err}
		}
		stats.Pushed, _ = res.RowsAffected()

		return tx.Commit()
	})
	if err != nil {
		var ae *apperr.SyncAttachError
		if !errors.As(err, &ae) {
			err = &apperr.SyncAttachError{URI: uri, Reason: err.Error(), Err: err}
		}
		return AttachStats{}, err
	}

	s.logger.Info("sync via attach done", slog.String("uri", uri),
		slog.Int64("pulled", stats.Pulled), slog.Int64("pushed", stats.Pushed))
	s.notify(EventSynced, models.Note{URL: uri})
	return stats, nil
}

func attachedVersion(ctx context.Context, conn *sql.Conn) (string, error) {
	var n int
	err := conn.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM other.sqlite_master WHERE type = 'table' AND name = 'meta'`).Scan(&n)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return store.LegacyVersion, nil
	}
	var v string
	err = conn.QueryRowContext(ctx, `SELECT meta_value FROM other.meta WHERE meta_key = 'version'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return store.LegacyVersion, nil
	}
	return v, err
}
