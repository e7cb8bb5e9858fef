package nativemsg

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/localnative/localnative/internal/apperr"
	"github.com/localnative/localnative/internal/command"
	"github.com/localnative/localnative/internal/models"
	"github.com/localnative/localnative/internal/testutil"
)

func frameOf(body string) []byte {
	buf := make([]byte, 4, 4+len(body))
	binary.NativeEndian.PutUint32(buf, uint32(len(body)))
	return append(buf, body...)
}

func TestReadFrame_ConsumesExactly(t *testing.T) {
	stream := append(frameOf(`{"a":1}`), frameOf(`{"b":22}`)...)
	stream = append(stream, "tail"...)
	r := bytes.NewReader(stream)

	p, err := ReadFrame(r, MaxFrameBytes)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(p) != `{"a":1}` {
		t.Errorf("payload = %q", p)
	}
	if consumed := len(stream) - r.Len(); consumed != 4+7 {
		t.Errorf("consumed %d bytes, want %d", consumed, 4+7)
	}

	p, err = ReadFrame(r, MaxFrameBytes)
	if err != nil || string(p) != `{"b":22}` {
		t.Fatalf("second frame = %q, %v", p, err)
	}
	if r.Len() != len("tail") {
		t.Errorf("remaining = %d, want 4", r.Len())
	}
}

func TestReadFrame_Errors(t *testing.T) {
	if _, err := ReadFrame(bytes.NewReader(nil), MaxFrameBytes); err != io.EOF {
		t.Errorf("empty stream err = %v, want io.EOF", err)
	}
	if _, err := ReadFrame(bytes.NewReader([]byte{1, 0}), MaxFrameBytes); !errors.Is(err, apperr.ErrDecode) {
		t.Errorf("short header err = %v, want ErrDecode", err)
	}
	if _, err := ReadFrame(bytes.NewReader(frameOf("abc")[:5]), MaxFrameBytes); !errors.Is(err, apperr.ErrDecode) {
		t.Errorf("short payload err = %v, want ErrDecode", err)
	}

	var hdr [4]byte
	binary.NativeEndian.PutUint32(hdr[:], MaxFrameBytes+1)
	if _, err := ReadFrame(bytes.NewReader(hdr[:]), MaxFrameBytes); !errors.Is(err, apperr.ErrFrameTooLarge) {
		t.Errorf("oversized err = %v, want ErrFrameTooLarge", err)
	}
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("hello"), MaxFrameBytes); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), frameOf("hello")) {
		t.Errorf("frame = %v", buf.Bytes())
	}
	if err := WriteFrame(&buf, make([]byte, 10), 9); !errors.Is(err, apperr.ErrFrameTooLarge) {
		t.Errorf("oversized write err = %v", err)
	}
}

func TestHost_SelectRoundTrip(t *testing.T) {
	svc := testutil.TestNotes(t)
	testutil.SeedNotes(t, svc, "one", "two")
	engine := command.NewEngine(svc)

	in := bytes.NewReader(frameOf(`{"action":"select","limit":1,"offset":0}`))
	var out bytes.Buffer
	if err := NewHost(engine, in, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	payload, err := ReadFrame(&out, MaxFrameBytes)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	var r models.QueryResult
	if err := json.Unmarshal(payload, &r); err != nil {
		t.Fatalf("response %s: %v", payload, err)
	}
	if r.Count != 2 || len(r.Notes) != 1 {
		t.Errorf("count = %d, notes = %d, want 2/1", r.Count, len(r.Notes))
	}
	if out.Len() != 0 {
		t.Errorf("%d stray bytes after the response frame", out.Len())
	}
}

func TestHost_AnswersEveryFrame(t *testing.T) {
	engine := command.NewEngine(testutil.TestNotes(t))

	var in bytes.Buffer
	in.Write(frameOf(`not json`))
	in.Write(frameOf(`{"action":"nope"}`))
	in.Write(frameOf(`{"action":"select","limit":10,"offset":0}`))

	var out bytes.Buffer
	if err := NewHost(engine, &in, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"cmd json error", "cmd no match", ""}
	for i, w := range want {
		payload, err := ReadFrame(&out, MaxFrameBytes)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		var m map[string]any
		if err := json.Unmarshal(payload, &m); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		got, _ := m["error"].(string)
		if got != w {
			t.Errorf("frame %d error = %q, want %q", i, got, w)
		}
	}
}

func TestHost_OversizedFrameIsFatal(t *testing.T) {
	engine := command.NewEngine(testutil.TestNotes(t))
	var hdr [4]byte
	binary.NativeEndian.PutUint32(hdr[:], 1024)

	var out bytes.Buffer
	err := NewHost(engine, bytes.NewReader(hdr[:]), &out, WithMaxFrameBytes(256)).Run(context.Background())
	if !errors.Is(err, apperr.ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
	payload, err := ReadFrame(&out, MaxFrameBytes)
	if err != nil {
		t.Fatalf("no error frame written: %v", err)
	}
	if !strings.Contains(string(payload), `"error"`) {
		t.Errorf("payload = %s", payload)
	}
}

type blockingReader struct{ ch chan struct{} }

func (b blockingReader) Read([]byte) (int, error) {
	<-b.ch
	return 0, io.EOF
}

func TestHost_StopsOnCancel(t *testing.T) {
	engine := command.NewEngine(testutil.TestNotes(t))
	r := blockingReader{ch: make(chan struct{})}
	defer close(r.ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewHost(engine, r, io.Discard).Run(ctx); err != nil {
		t.Errorf("Run after cancel = %v, want nil", err)
	}
}
