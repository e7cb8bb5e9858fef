package internal

import (
	"context"
	"io"
	"log/slog"

	"github.com/localnative/localnative/internal/mcpserver"
	"github.com/localnative/localnative/internal/nativemsg"
)

// RunHost serves length-prefixed command frames from in to out until EOF.
func RunHost(ctx context.Context, in io.Reader, out io.Writer, opts ...Option) error {
	rt, err := Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error("close runtime", slog.String("error", err.Error()))
		}
	}()

	host := nativemsg.NewHost(rt.Engine, in, out,
		nativemsg.WithLogger(rt.Logger),
		nativemsg.WithMaxFrameBytes(rt.Config.Host.MaxFrameBytes),
	)
	return host.Run(ctx)
}

// RunMCP serves the MCP tool set on stdin/stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error("close runtime", slog.String("error", err.Error()))
		}
	}()

	rt.Logger.Info("Starting MCP server on stdio")
	return mcpserver.New(rt.Engine).ServeStdio()
}
