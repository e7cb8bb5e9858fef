package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/localnative/localnative/internal/apperr"
)

// Version is the current schema version.
const Version = "0.5.0"

// LegacyVersion is assumed for databases that predate the meta table.
const LegacyVersion = "0.3.10"

const noteSchemaSQL = `
CREATE TABLE note (
	rowid       INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid4       TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL,
	url         TEXT NOT NULL,
	tags        TEXT NOT NULL,
	description TEXT NOT NULL,
	comments    TEXT NOT NULL,
	annotations TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	is_public   BOOLEAN NOT NULL DEFAULT 0
);
`

const metaSchemaSQL = `
CREATE TABLE IF NOT EXISTS meta (
	meta_key   TEXT PRIMARY KEY,
	meta_value TEXT NOT NULL
);
`

// step moves the schema from any version accepted by from to target.
type step struct {
	target string
	from   func(v *semver.Version) bool
	run    func(ctx context.Context, tx DBTX) error
}

// ladder is applied in order; each step runs in its own transaction which
// also records the new meta.version.
var ladder = []step{
	{target: "0.4.0", from: below("0.4.0"), run: toUUIDSchema},
	{target: "0.4.1", from: equal("0.4.0"), run: copyLegacyNotes},
	{target: "0.4.2", from: equal("0.4.1"), run: func(context.Context, DBTX) error { return nil }},
	{target: "0.5.0", from: equal("0.4.2"), run: dropSSB},
	{target: Version, from: below(Version), run: func(context.Context, DBTX) error { return nil }},
}

// Migrate applies every pending step and returns the resulting version.
// It refuses to run while a previous upgrade is marked in progress.
func (s *Store) Migrate(ctx context.Context) (string, error) {
	upgrading, err := s.isUpgrading(ctx)
	if err != nil {
		return "", err
	}
	if upgrading {
		return "", fmt.Errorf("store: migrate: %w", apperr.ErrUpgradeInProgress)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return "", err
	}

	for _, st := range ladder {
		v, err := semver.NewVersion(current)
		if err != nil {
			return "", fmt.Errorf("store: parse version %q: %w: %w", current, apperr.ErrSchema, err)
		}
		if !st.from(v) {
			continue
		}

		s.logger.Info("migrating schema", slog.String("from", current), slog.String("to", st.target))
		err = s.WithTx(ctx, func(ctx context.Context, tx DBTX) error {
			if err := st.run(ctx, tx); err != nil {
				return err
			}
			return setMeta(ctx, tx, "version", st.target)
		})
		if err != nil {
			return "", fmt.Errorf("store: migrate to %s: %w: %w", st.target, apperr.ErrSchema, err)
		}
		current = st.target
	}
	return current, nil
}

// SchemaVersion reads meta.version, defaulting to LegacyVersion when the
// meta table or the key is absent.
func (s *Store) SchemaVersion(ctx context.Context) (string, error) {
	v, ok, err := readMeta(ctx, s.conn, "version")
	if err != nil {
		return "", err
	}
	if !ok {
		return LegacyVersion, nil
	}
	return v, nil
}

// VersionsMatch reports whether two schema versions are semantically equal.
func VersionsMatch(a, b string) bool {
	va, err := semver.NewVersion(a)
	if err != nil {
		return false
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return false
	}
	return va.Equal(vb)
}

func (s *Store) isUpgrading(ctx context.Context) (bool, error) {
	v, ok, err := readMeta(ctx, s.conn, "is_upgrading")
	if err != nil {
		return false, err
	}
	return ok && v == "1", nil
}

func readMeta(ctx context.Context, q DBTX, key string) (string, bool, error) {
	exists, err := tableExists(ctx, q, "", "meta")
	if err != nil || !exists {
		return "", false, err
	}
	var v string
	err = q.QueryRowContext(ctx, `SELECT meta_value FROM meta WHERE meta_key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: read meta %s: %w", key, classify(err))
	}
	return v, true, nil
}

func setMeta(ctx context.Context, tx DBTX, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (meta_key, meta_value) VALUES (?, ?)
		ON CONFLICT(meta_key) DO UPDATE SET meta_value = excluded.meta_value`, key, value)
	if err != nil {
		return fmt.Errorf("store: set meta %s: %w", key, err)
	}
	return nil
}

// tableExists checks sqlite_master of the given schema ("" for main).
func tableExists(ctx context.Context, q DBTX, schema, name string) (bool, error) {
	master := "sqlite_master"
	if schema != "" {
		master = schema + ".sqlite_master"
	}
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+master+` WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: check table %s: %w", name, classify(err))
	}
	return n > 0, nil
}

// toUUIDSchema parks any pre-uuid note table as _note_0_3 and creates the
// current note and meta tables, flagging the upgrade as in progress.
func toUUIDSchema(ctx context.Context, tx DBTX) error {
	legacy, err := tableExists(ctx, tx, "", "note")
	if err != nil {
		return err
	}
	if legacy {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE note RENAME TO _note_0_3`); err != nil {
			return fmt.Errorf("rename legacy note table: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, noteSchemaSQL); err != nil {
		return fmt.Errorf("create note table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, metaSchemaSQL); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}
	return setMeta(ctx, tx, "is_upgrading", "1")
}

// copyLegacyNotes moves every _note_0_3 row into note under a fresh uuid4.
func copyLegacyNotes(ctx context.Context, tx DBTX) error {
	legacy, err := tableExists(ctx, tx, "", "_note_0_3")
	if err != nil {
		return err
	}
	if legacy {
		rows, err := tx.QueryContext(ctx, `
			SELECT title, url, tags, description, comments, annotations, created_at, is_public
			FROM _note_0_3 ORDER BY rowid`)
		if err != nil {
			return fmt.Errorf("read legacy notes: %w", err)
		}
		type legacyNote struct {
			title, url, tags, description, comments string
			annotations                             []byte
			createdAt                               string
			isPublic                                bool
		}
		var pending []legacyNote
		for rows.Next() {
			var n legacyNote
			if err := rows.Scan(&n.title, &n.url, &n.tags, &n.description, &n.comments,
				&n.annotations, &n.createdAt, &n.isPublic); err != nil {
				rows.Close()
				return fmt.Errorf("scan legacy note: %w", err)
			}
			pending = append(pending, n)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, n := range pending {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO note (uuid4, title, url, tags, description, comments, annotations, created_at, is_public)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), n.title, n.url, n.tags, n.description, n.comments,
				n.annotations, n.createdAt, n.isPublic); err != nil {
				return fmt.Errorf("copy legacy note: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DROP TABLE _note_0_3`); err != nil {
			return fmt.Errorf("drop legacy note table: %w", err)
		}
	}
	return setMeta(ctx, tx, "is_upgrading", "0")
}

func dropSSB(ctx context.Context, tx DBTX) error {
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS ssb`); err != nil {
		return fmt.Errorf("drop ssb table: %w", err)
	}
	return nil
}

func below(target string) func(*semver.Version) bool {
	t := semver.MustParse(target)
	return func(v *semver.Version) bool { return v.LessThan(t) }
}

func equal(target string) func(*semver.Version) bool {
	t := semver.MustParse(target)
	return func(v *semver.Version) bool { return v.Equal(t) }
}
