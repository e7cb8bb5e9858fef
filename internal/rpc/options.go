// Package rpc implements the peer-to-peer note sync service over gRPC.
package rpc

import (
	"io"
	"log/slog"
	"time"
)

// Defaults for the sync transport.
const (
	DefaultPort             = 3456
	DefaultCallTimeout      = 60 * time.Second
	DefaultConnectTimeout   = 5 * time.Second
	DefaultMaxChannelsPerIP = 2
)

type settings struct {
	logger           *slog.Logger
	callTimeout      time.Duration
	connectTimeout   time.Duration
	maxChannelsPerIP int64
}

// Option configures a Server, Client or Manager.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithCallTimeout sets the deadline applied to each RPC call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithConnectTimeout bounds how long a client waits for the connection.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// WithMaxChannelsPerIP limits concurrent connections from one peer IP.
func WithMaxChannelsPerIP(n int64) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxChannelsPerIP = n
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:           slog.New(slog.NewJSONHandler(io.Discard, nil)),
		callTimeout:      DefaultCallTimeout,
		connectTimeout:   DefaultConnectTimeout,
		maxChannelsPerIP: DefaultMaxChannelsPerIP,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
