package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/localnative/localnative/internal/notes"
)

// Manager owns the process's sync server and runs client sessions on
// behalf of the command engine.
type Manager struct {
	notes *notes.Service
	opts  []Option
	cfg   settings

	mu     sync.Mutex
	server *Server
}

// NewManager creates a Manager over svc.
func NewManager(svc *notes.Service, opts ...Option) *Manager {
	cfg := newSettings(opts)
	cfg.logger = cfg.logger.With(slog.String("component", "rpc"))
	return &Manager{notes: svc, opts: opts, cfg: cfg}
}

// Server returns the managed server, creating it on first use.
func (m *Manager) Server() *Server {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server == nil {
		m.server = NewServer(m.notes, m.opts...)
	}
	return m.server
}

// StartServer starts the sync server on addr. Starting an opened server is
// a no-op; a previous failure is acknowledged first.
func (m *Manager) StartServer(_ context.Context, addr string) error {
	srv := m.Server()
	switch srv.State() {
	case StateOpened, StateStarting:
		m.cfg.logger.Info("sync server already running", slog.Any("addr", srv.Addr()))
		return nil
	case StateError:
		srv.Ack()
	case StateClosing:
		if done := srv.Done(); done != nil {
			<-done
		}
	}
	if err := srv.Start(addr); err != nil {
		return err
	}
	if tcp, ok := srv.Addr().(*net.TCPAddr); ok {
		m.cfg.logger.Info("sync server reachable", slog.String("advertise", AdvertiseAddr(tcp.Port)))
	}
	return nil
}

// ClientSync runs a sync session against the server at addr and returns a
// human readable summary.
func (m *Manager) ClientSync(ctx context.Context, addr string) (string, error) {
	c, err := Dial(ctx, addr, m.opts...)
	if err != nil {
		return "", err
	}
	defer c.Close()

	stats, err := Sync(ctx, m.notes, c, m.cfg.logger.With(slog.String("peer", addr)))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s with %s", stats, addr), nil
}

// StopServer stops the server at addr. An empty addr stops the local server.
func (m *Manager) StopServer(ctx context.Context, addr string) error {
	if addr == "" {
		m.Close()
		return nil
	}
	c, err := Dial(ctx, addr, m.opts...)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Stop(ctx)
}

// Close stops the local server and waits for it to drain.
func (m *Manager) Close() {
	m.mu.Lock()
	srv := m.server
	m.mu.Unlock()
	if srv == nil {
		return
	}
	srv.Stop()
	if done := srv.Done(); done != nil {
		<-done
	}
}

// AdvertiseAddr returns host:port using the first non-loopback IPv4 address
// of an interface that is up, falling back to 127.0.0.1.
func AdvertiseAddr(port int) string {
	host := "127.0.0.1"
	ifaces, err := net.Interfaces()
	if err == nil {
	search:
		for _, iface := range ifaces {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			for _, a := range addrs {
				ipnet, ok := a.(*net.IPNet)
				if !ok || ipnet.IP.IsLoopback() {
					continue
				}
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					host = ip4.String()
					break search
				}
			}
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
