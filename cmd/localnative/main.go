package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/localnative/localnative/internal"
	"github.com/localnative/localnative/internal/apperr"
	"github.com/localnative/localnative/internal/command"
	pkgconfig "github.com/localnative/localnative/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if db := cmd.String("db"); db != "" {
		cfg.Store.Path = db
	}
	return cfg, nil
}

// withRuntime opens the store for one-shot commands.
func withRuntime(ctx context.Context, cmd *cli.Command, fn func(*internal.Runtime) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rt, err := internal.Open(ctx, internal.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.Args().First()
	if v == "" {
		return "", cli.Exit(fmt.Sprintf("%s: missing <%s>", cmd.Name, name), 1)
	}
	return v, nil
}

// peerAddr returns the peer address from --addr, falling back to the first
// positional argument.
func peerAddr(cmd *cli.Command) (string, error) {
	if addr := cmd.String("addr"); addr != "" {
		return addr, nil
	}
	return requireArg(cmd, "host:port")
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("http-port") {
		cfg.App.HTTP.Port = int(cmd.Int("http-port"))
	}
	if cmd.IsSet("addr") {
		cfg.Sync.Addr = cmd.String("addr")
	}
	if cmd.Bool("sync") {
		cfg.Sync.Serve = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func server(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.App.HTTP.Port = 0
	cfg.Sync.Serve = true
	if cmd.IsSet("addr") {
		cfg.Sync.Addr = cmd.String("addr")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return internal.Run(ctx, internal.WithConfig(cfg))
}

func exec(ctx context.Context, cmd *cli.Command) error {
	text := cmd.Args().First()
	if text == "" || text == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}
	return withRuntime(ctx, cmd, func(rt *internal.Runtime) error {
		out := rt.Engine.Execute(ctx, []byte(strings.TrimSpace(text)))
		if err := printJSON(out); err != nil {
			return err
		}
		if e, ok := out.(command.ErrorResponse); ok {
			return cli.Exit("", exitForKind(e.Kind))
		}
		return nil
	})
}

func syncViaAttach(ctx context.Context, cmd *cli.Command) error {
	uri, err := requireArg(cmd, "path")
	if err != nil {
		return err
	}
	return withRuntime(ctx, cmd, func(rt *internal.Runtime) error {
		stats, err := rt.Notes.SyncViaAttach(ctx, uri)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"sync-via-attach-done": uri, "stats": stats})
	})
}

func upgrade(ctx context.Context, cmd *cli.Command) error {
	return withRuntime(ctx, cmd, func(rt *internal.Runtime) error {
		v, err := rt.Store.Migrate(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"upgraded": v})
	})
}

func clientSync(ctx context.Context, cmd *cli.Command) error {
	addr, err := peerAddr(cmd)
	if err != nil {
		return err
	}
	return withRuntime(ctx, cmd, func(rt *internal.Runtime) error {
		summary, err := rt.Peers.ClientSync(ctx, addr)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"client-sync": summary})
	})
}

func clientStopServer(ctx context.Context, cmd *cli.Command) error {
	addr, err := peerAddr(cmd)
	if err != nil {
		return err
	}
	return withRuntime(ctx, cmd, func(rt *internal.Runtime) error {
		if err := rt.Peers.StopServer(ctx, addr); err != nil {
			return err
		}
		return printJSON(map[string]string{"client-stop-server": "stopped"})
	})
}

func host(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunHost(ctx, os.Stdin, os.Stdout, internal.WithConfig(cfg))
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func exitForKind(kind string) int {
	switch kind {
	case "upgrade_in_progress":
		return apperr.ExitUpgradeInProgress
	case "version_mismatch":
		return apperr.ExitVersionMismatch
	case "io":
		return apperr.ExitIO
	default:
		return apperr.ExitUsage
	}
}

func main() {
	addrFlag := &cli.StringFlag{
		Name:    "addr",
		Usage:   "Sync server listen address (host:port)",
		Sources: cli.EnvVars("LOCALNATIVE_SYNC_ADDR"),
	}
	peerAddrFlag := &cli.StringFlag{
		Name:  "addr",
		Usage: "Peer sync server address (host:port)",
	}

	cmd := &cli.Command{
		Name:   "localnative",
		Usage:  "Local-first bookmark notes with peer-to-peer sync",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (optional)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("LOCALNATIVE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Path to the note database (default $HOME/LocalNative/localnative.sqlite3)",
				Sources: cli.EnvVars("LOCALNATIVE_DB"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and, with --sync, the peer sync server",
				Action: serve,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "http-port", Usage: "HTTP API port (0 disables)"},
					&cli.BoolFlag{Name: "sync", Usage: "Also run the peer sync server"},
					addrFlag,
				},
			},
			{
				Name:   "server",
				Usage:  "Run only the peer sync server until stopped",
				Action: server,
				Flags:  []cli.Flag{addrFlag},
			},
			{
				Name:      "client-sync",
				Usage:     "Synchronize with a peer's sync server",
				ArgsUsage: "[<host:port>]",
				Action:    clientSync,
				Flags:     []cli.Flag{peerAddrFlag},
			},
			{
				Name:      "client-stop-server",
				Usage:     "Ask a peer's sync server to stop",
				ArgsUsage: "[<host:port>]",
				Action:    clientStopServer,
				Flags:     []cli.Flag{peerAddrFlag},
			},
			{
				Name:      "sync-via-attach",
				Usage:     "Merge another store file into the local store",
				ArgsUsage: "<path>",
				Action:    syncViaAttach,
			},
			{
				Name:   "upgrade",
				Usage:  "Migrate the store schema to the current version",
				Action: upgrade,
			},
			{
				Name:      "exec",
				Usage:     "Run one command envelope (argument or stdin) and print the response",
				ArgsUsage: "[json]",
				Action:    exec,
			},
			{
				Name:   "host",
				Usage:  "Serve native-messaging frames on stdin/stdout",
				Action: host,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			if msg := ec.Error(); msg != "" {
				slog.Error("application error", slog.String("error", msg))
			}
			os.Exit(ec.ExitCode())
		}
		slog.Error("application error", slog.String("error", err.Error()), slog.String("kind", apperr.Kind(err)))
		os.Exit(apperr.ExitCode(err))
	}
}
