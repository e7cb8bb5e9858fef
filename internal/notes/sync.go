package notes

import (
	"context"
	"fmt"

	"github.com/localnative/localnative/internal/store"
)

// UUID4s returns every local uuid4 in ascending rowid order.
func (s *Service) UUID4s(ctx context.Context) ([]string, error) {
	var out []string
	err := s.store.WithReadTx(ctx, func(ctx context.Context, tx store.DBTX) error {
		var err error
		out, err = uuid4s(ctx, tx)
		return err
	})
	return out, err
}

// DiffToServer returns the candidates not present locally, in candidate order.
func (s *Service) DiffToServer(ctx context.Context, candidates []string) ([]string, error) {
	local, err := s.UUID4s(ctx)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(local))
	for _, u := range local {
		have[u] = struct{}{}
	}
	out := []string{}
	for _, c := range candidates {
		if _, ok := have[c]; !ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// DiffFromServer returns the local uuid4s absent from candidates, in rowid order.
func (s *Service) DiffFromServer(ctx context.Context, candidates []string) ([]string, error) {
	local, err := s.UUID4s(ctx)
	if err != nil {
		return nil, err
	}
	theirs := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		theirs[c] = struct{}{}
	}
	out := []string{}
	for _, u := range local {
		if _, ok := theirs[u]; !ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func uuid4s(ctx context.Context, tx store.DBTX) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT uuid4 FROM note ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("notes: uuid4 list: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("notes: scan uuid4: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
