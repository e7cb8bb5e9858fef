// Package nativemsg implements the browser native-messaging frame format
// and the request/response host loop built on it.
package nativemsg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/localnative/localnative/internal/apperr"
)

// MaxFrameBytes bounds a single payload.
const MaxFrameBytes = 1 << 20

// headerLen is the size of the native-endian u32 length prefix.
const headerLen = 4

// ReadFrame reads one frame from r and returns its payload. It returns
// io.EOF when r is exhausted before a header starts, and consumes exactly
// 4+N bytes otherwise.
func ReadFrame(r io.Reader, max uint32) ([]byte, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("nativemsg: read header: %w: %w", apperr.ErrDecode, err)
	}
	n := binary.NativeEndian.Uint32(hdr[:])
	if n > max {
		return nil, fmt.Errorf("nativemsg: frame of %d bytes exceeds %d: %w", n, max, apperr.ErrFrameTooLarge)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("nativemsg: read payload: %w: %w", apperr.ErrDecode, err)
	}
	return buf, nil
}

// WriteFrame writes payload to w as one frame.
func WriteFrame(w io.Writer, payload []byte, max uint32) error {
	if uint64(len(payload)) > uint64(max) {
		return fmt.Errorf("nativemsg: frame of %d bytes exceeds %d: %w", len(payload), max, apperr.ErrFrameTooLarge)
	}
	var hdr [headerLen]byte
	binary.NativeEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("nativemsg: write header: %w: %w", apperr.ErrIO, err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("nativemsg: write payload: %w: %w", apperr.ErrIO, err)
	}
	return nil
}
