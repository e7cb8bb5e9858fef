package rpc

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/localnative/localnative/internal/apperr"
	"github.com/localnative/localnative/internal/models"
	"github.com/localnative/localnative/internal/notes"
)

// Peer is the remote side of a sync session.
type Peer interface {
	IsVersionMatch(ctx context.Context, version string) (bool, error)
	DiffToServer(ctx context.Context, candidates []string) ([]string, error)
	DiffFromServer(ctx context.Context, candidates []string) ([]string, error)
	SendNote(ctx context.Context, n models.Note) error
	ReceiveNote(ctx context.Context, id string) (models.Note, error)
}

// SyncStats counts the notes moved by a session.
type SyncStats struct {
	Pushed int
	Pulled int
}

func (s SyncStats) String() string {
	return fmt.Sprintf("pushed %d, pulled %d", s.Pushed, s.Pulled)
}

// Sync exchanges missing notes with peer. The version gate runs first and
// aborts before any transfer. Push and pull then run concurrently; a failing
// phase does not cancel the other and the first error is returned.
func Sync(ctx context.Context, local *notes.Service, peer Peer, logger *slog.Logger) (SyncStats, error) {
	var stats SyncStats

	version, err := local.Version(ctx)
	if err != nil {
		return stats, err
	}
	ok, err := peer.IsVersionMatch(ctx, version)
	if err != nil {
		return stats, err
	}
	if !ok {
		return stats, fmt.Errorf("rpc: sync: peer schema differs from %s, upgrade both sides: %w", version, apperr.ErrVersionMismatch)
	}

	ids, err := local.UUID4s(ctx)
	if err != nil {
		return stats, err
	}

	var g errgroup.Group
	g.Go(func() error {
		missing, err := peer.DiffToServer(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range missing {
			n, err := local.GetByUUID4(ctx, id)
			if err != nil {
				return err
			}
			if err := peer.SendNote(ctx, n); err != nil {
				return err
			}
			stats.Pushed++
		}
		return nil
	})
	g.Go(func() error {
		missing, err := peer.DiffFromServer(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range missing {
			n, err := peer.ReceiveNote(ctx, id)
			if err != nil {
				return err
			}
			if _, err := local.Insert(ctx, n); err != nil {
				return err
			}
			stats.Pulled++
		}
		return nil
	})
	err = g.Wait()

	logger.Info("sync session finished",
		slog.Int("pushed", stats.Pushed),
		slog.Int("pulled", stats.Pulled),
		slog.Any("error", err),
	)
	return stats, err
}
