package nativemsg

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/localnative/localnative/internal/apperr"
)

// Runner executes one command and always returns a JSON response.
type Runner interface {
	Run(ctx context.Context, text []byte) []byte
}

// Host answers framed commands read from in with framed responses on out.
type Host struct {
	runner   Runner
	in       io.Reader
	out      *bufio.Writer
	maxBytes uint32
	logger   *slog.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger. It must not write to the host's output.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		h.logger = l
	}
}

// WithMaxFrameBytes overrides MaxFrameBytes.
func WithMaxFrameBytes(n uint32) Option {
	return func(h *Host) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

// NewHost creates a Host over the given streams.
func NewHost(r Runner, in io.Reader, out io.Writer, opts ...Option) *Host {
	h := &Host{
		runner:   r,
		in:       in,
		out:      bufio.NewWriter(out),
		maxBytes: MaxFrameBytes,
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(slog.String("component", "host"))
	return h
}

type frame struct {
	payload []byte
	err     error
}

// Run serves frames until in reaches EOF, ctx is cancelled or a fatal
// framing error occurs. EOF and cancellation return nil. A cancelled
// context lets the in-flight command finish first.
func (h *Host) Run(ctx context.Context) error {
	frames := make(chan frame)
	go func() {
		for {
			p, err := ReadFrame(h.in, h.maxBytes)
			select {
			case frames <- frame{payload: p, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	h.logger.Info("native messaging host started")
	for {
		var f frame
		select {
		case <-ctx.Done():
			h.logger.Info("native messaging host stopped", slog.String("reason", "cancelled"))
			return nil
		case f = <-frames:
		}

		if errors.Is(f.err, io.EOF) {
			h.logger.Info("native messaging host stopped", slog.String("reason", "eof"))
			return nil
		}
		if f.err != nil {
			h.logger.Error("read frame failed", slog.String("error", f.err.Error()))
			// The stream position is lost; answer once and give up.
			resp, _ := json.Marshal(map[string]string{"error": f.err.Error(), "kind": apperr.Kind(f.err)})
			if err := h.write(resp); err != nil {
				return errors.Join(f.err, err)
			}
			return f.err
		}

		resp := h.runner.Run(context.WithoutCancel(ctx), f.payload)
		if err := h.write(resp); err != nil {
			h.logger.Error("write frame failed", slog.String("error", err.Error()))
			return err
		}
	}
}

func (h *Host) write(resp []byte) error {
	if uint64(len(resp)) > uint64(h.maxBytes) {
		h.logger.Warn("response too large", slog.Int("bytes", len(resp)))
		msg := fmt.Sprintf("response of %d bytes exceeds frame limit, narrow the query or lower the limit", len(resp))
		resp, _ = json.Marshal(map[string]string{"error": msg, "kind": apperr.Kind(apperr.ErrFrameTooLarge)})
	}
	if err := WriteFrame(h.out, resp, h.maxBytes); err != nil {
		return err
	}
	if err := h.out.Flush(); err != nil {
		return fmt.Errorf("nativemsg: flush: %w: %w", apperr.ErrIO, err)
	}
	return nil
}
