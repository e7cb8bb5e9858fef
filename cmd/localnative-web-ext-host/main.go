// Command localnative-web-ext-host is the native-messaging host launched by
// the browser extension. Frames arrive on stdin and responses leave on
// stdout, so logs go to stderr.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/localnative/localnative/internal"
	"github.com/localnative/localnative/internal/apperr"
	pkgconfig "github.com/localnative/localnative/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(os.Getenv("LOCALNATIVE_CONFIG"), cfg); err != nil {
		slog.Error("failed to parse config", slog.String("error", err.Error()))
		os.Exit(apperr.ExitUsage)
	}
	if db := os.Getenv("LOCALNATIVE_DB"); db != "" {
		cfg.Store.Path = db
	}

	// Browsers pass the extension origin as arguments; they are not used.
	if err := internal.RunHost(ctx, os.Stdin, os.Stdout, internal.WithConfig(cfg)); err != nil {
		slog.Error("host error", slog.String("error", err.Error()), slog.String("kind", apperr.Kind(err)))
		os.Exit(apperr.ExitCode(err))
	}
}
