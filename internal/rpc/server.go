package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"

	"github.com/localnative/localnative/internal/apperr"
	"github.com/localnative/localnative/internal/notes"
)

// State is the lifecycle state of a Server.
type State int32

const (
	StateClosed State = iota
	StateStarting
	StateOpened
	StateClosing
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateStarting:
		return "starting"
	case StateOpened:
		return "opened"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Server exposes the local note store to sync peers.
type Server struct {
	notes *notes.Service
	cfg   settings

	mu     sync.Mutex
	state  State
	err    error
	addr   net.Addr
	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer creates a closed Server over svc.
func NewServer(svc *notes.Service, opts ...Option) *Server {
	cfg := newSettings(opts)
	cfg.logger = cfg.logger.With(slog.String("component", "rpc"))
	return &Server{notes: svc, cfg: cfg}
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the bind or serve failure that moved the server to StateError.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Addr returns the bound address while the server is opened.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds addr and begins serving in the background. It may only be
// called from StateClosed.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.state != StateClosed {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("rpc: start: server is %s: %w", st, apperr.ErrInternal)
	}
	s.state = StateStarting
	s.mu.Unlock()

	inner, err := net.Listen("tcp", addr)
	if err != nil {
		err = fmt.Errorf("rpc: listen %s: %w: %w", addr, apperr.ErrIO, err)
		s.mu.Lock()
		s.state, s.err = StateError, err
		s.mu.Unlock()
		s.cfg.logger.Error("sync server bind failed", slog.String("error", err.Error()))
		return err
	}
	lis := newLimitListener(inner, s.cfg.maxChannelsPerIP)

	ctx, cancel := context.WithCancel(context.Background())
	h := &handler{notes: s.notes, stop: cancel, logger: s.cfg.logger}
	gs := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMessageBytes),
		grpc.MaxSendMsgSize(maxMessageBytes),
		grpc.ChainUnaryInterceptor(h.recoverInterceptor, h.logInterceptor),
	)
	gs.RegisterService(&serviceDesc, h)

	done := make(chan struct{})
	s.mu.Lock()
	s.state, s.err = StateOpened, nil
	s.addr = lis.Addr()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.cfg.logger.Info("sync server started", slog.String("addr", lis.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- gs.Serve(lis)
	}()
	go func() {
		var err error
		select {
		case <-ctx.Done():
		case err = <-serveErr:
			cancel()
		}
		s.mu.Lock()
		s.state = StateClosing
		s.mu.Unlock()

		// GracefulStop closes the listener and waits for in-flight calls.
		gs.GracefulStop()

		s.mu.Lock()
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.state, s.err = StateError, fmt.Errorf("rpc: serve: %w: %w", apperr.ErrIO, err)
			s.cfg.logger.Error("sync server failed", slog.String("error", err.Error()))
		} else {
			s.state = StateClosed
			s.cfg.logger.Info("sync server stopped")
		}
		s.addr = nil
		s.mu.Unlock()
		close(done)
	}()
	return nil
}

// Stop cancels the server. In-flight calls run to completion and no new
// channels are accepted. It returns immediately; use Done to wait.
func (s *Server) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed once the server has drained after Stop. It is nil before
// the first successful Start.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Ack acknowledges a failure, moving StateError back to StateClosed.
func (s *Server) Ack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateError {
		s.state, s.err = StateClosed, nil
	}
}

// Run starts the server on addr and blocks until ctx is cancelled or a
// peer stops it.
func (s *Server) Run(ctx context.Context, addr string) error {
	if err := s.Start(addr); err != nil {
		return err
	}
	done := s.Done()
	select {
	case <-ctx.Done():
		s.Stop()
		<-done
	case <-done:
	}
	return s.Err()
}
