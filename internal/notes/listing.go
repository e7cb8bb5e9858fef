package notes

import (
	"context"
	"fmt"
	"sort"

	"github.com/localnative/localnative/internal/models"
	"github.com/localnative/localnative/internal/query"
	"github.com/localnative/localnative/internal/store"
	"github.com/localnative/localnative/internal/tags"
)

// Params selects a page of notes and the predicate the aggregations share.
type Params struct {
	Query  string
	From   string
	To     string
	Limit  int64
	Offset int64
}

// List returns a page of all notes, newest first.
func (s *Service) List(ctx context.Context, limit, offset int64) ([]models.Note, error) {
	return s.page(ctx, query.Build("", "", ""), limit, offset)
}

// Search returns a page of notes matching q.
func (s *Service) Search(ctx context.Context, q string, limit, offset int64) ([]models.Note, error) {
	return s.page(ctx, query.Build(q, "", ""), limit, offset)
}

// Filter returns a page of notes matching q within [from, to].
func (s *Service) Filter(ctx context.Context, q, from, to string, limit, offset int64) ([]models.Note, error) {
	return s.page(ctx, query.Build(q, from, to), limit, offset)
}

// CountAll counts every note.
func (s *Service) CountAll(ctx context.Context) (int64, error) {
	return s.count(ctx, query.Build("", "", ""))
}

// CountWithQuery counts notes matching q.
func (s *Service) CountWithQuery(ctx context.Context, q string) (int64, error) {
	return s.count(ctx, query.Build(q, "", ""))
}

// CountWithFilter counts notes matching q within [from, to].
func (s *Service) CountWithFilter(ctx context.Context, q, from, to string) (int64, error) {
	return s.count(ctx, query.Build(q, from, to))
}

// HistogramByDay returns (YYYY-MM-DD, count) pairs in day order.
func (s *Service) HistogramByDay(ctx context.Context, q, from, to string) ([]models.KV, error) {
	var out []models.KV
	err := s.store.WithReadTx(ctx, func(ctx context.Context, tx store.DBTX) error {
		var err error
		out, err = byDay(ctx, tx, query.Build(q, from, to))
		return err
	})
	return out, err
}

// HistogramByTag returns lowercased tag counts.
func (s *Service) HistogramByTag(ctx context.Context, q, from, to string) (map[string]int64, error) {
	var out map[string]int64
	err := s.store.WithReadTx(ctx, func(ctx context.Context, tx store.DBTX) error {
		var err error
		out, err = byTag(ctx, tx, query.Build(q, from, to))
		return err
	})
	return out, err
}

// Result assembles count, page and both histograms from one snapshot. The
// day histogram ignores the date range so callers keep the whole timeline
// while narrowing on it.
func (s *Service) Result(ctx context.Context, p Params) (models.QueryResult, error) {
	res := models.QueryResult{Notes: []models.Note{}, Days: []models.KV{}, Tags: []models.KV{}}
	w := query.Build(p.Query, p.From, p.To)

	err := s.store.WithReadTx(ctx, func(ctx context.Context, tx store.DBTX) error {
		var err error
		if res.Count, err = countIn(ctx, tx, w); err != nil {
			return err
		}
		if res.Notes, err = pageIn(ctx, tx, w, p.Limit, p.Offset); err != nil {
			return err
		}
		days, err := byDay(ctx, tx, query.Build(p.Query, "", ""))
		if err != nil {
			return err
		}
		res.Days = append(res.Days, days...)
		counts, err := byTag(ctx, tx, w)
		if err != nil {
			return err
		}
		res.Tags = SortTags(counts)
		return nil
	})
	if err != nil {
		return models.QueryResult{}, err
	}
	return res, nil
}

// SortTags orders a tag histogram by count descending, then tag ascending.
func SortTags(counts map[string]int64) []models.KV {
	out := make([]models.KV, 0, len(counts))
	for k, v := range counts {
		out = append(out, models.KV{K: k, V: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].V != out[j].V {
			return out[i].V > out[j].V
		}
		return out[i].K < out[j].K
	})
	return out
}

func (s *Service) page(ctx context.Context, w query.Where, limit, offset int64) ([]models.Note, error) {
	var out []models.Note
	err := s.store.WithReadTx(ctx, func(ctx context.Context, tx store.DBTX) error {
		var err error
		out, err = pageIn(ctx, tx, w, limit, offset)
		return err
	})
	return out, err
}

func (s *Service) count(ctx context.Context, w query.Where) (int64, error) {
	var n int64
	err := s.store.WithReadTx(ctx, func(ctx context.Context, tx store.DBTX) error {
		var err error
		n, err = countIn(ctx, tx, w)
		return err
	})
	return n, err
}

func pageIn(ctx context.Context, tx store.DBTX, w query.Where, limit, offset int64) ([]models.Note, error) {
	if offset < 0 {
		offset = 0
	}
	sqlText, args := w.Page(limit, offset)
	rows, err := tx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("notes: page: %w", err)
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("notes: scan: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func countIn(ctx context.Context, tx store.DBTX, w query.Where) (int64, error) {
	sqlText, args := w.Count()
	var n int64
	if err := tx.QueryRowContext(ctx, sqlText, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("notes: count: %w", err)
	}
	return n, nil
}

func byDay(ctx context.Context, tx store.DBTX, w query.Where) ([]models.KV, error) {
	sqlText, args := w.ByDay()
	rows, err := tx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("notes: by day: %w", err)
	}
	defer rows.Close()

	var out []models.KV
	for rows.Next() {
		var kv models.KV
		if err := rows.Scan(&kv.K, &kv.V); err != nil {
			return nil, fmt.Errorf("notes: scan day: %w", err)
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

func byTag(ctx context.Context, tx store.DBTX, w query.Where) (map[string]int64, error) {
	sqlText, args := w.Tags()
	rows, err := tx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("notes: by tag: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("notes: scan tags: %w", err)
		}
		for _, t := range tags.Split(raw) {
			out[t]++
		}
	}
	return out, rows.Err()
}
