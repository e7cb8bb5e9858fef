package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/localnative/localnative/internal/apperr"
	"github.com/localnative/localnative/internal/models"
	"github.com/localnative/localnative/internal/notes"
)

// PeerControl drives the sync server and client on behalf of the
// server, client-sync and client-stop-server actions.
type PeerControl interface {
	StartServer(ctx context.Context, addr string) error
	ClientSync(ctx context.Context, addr string) (string, error)
	StopServer(ctx context.Context, addr string) error
}

// Engine executes command envelopes against the note service.
type Engine struct {
	notes  *notes.Service
	peers  PeerControl
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPeers enables the sync actions.
func WithPeers(p PeerControl) Option {
	return func(e *Engine) {
		e.peers = p
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an Engine over svc.
func NewEngine(svc *notes.Service, opts ...Option) *Engine {
	e := &Engine{
		notes:  svc,
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Notes returns the underlying note service.
func (e *Engine) Notes() *notes.Service {
	return e.notes
}

// Run decodes text, executes it and returns the JSON response. It always
// answers: failures are rendered as {"error": ...}.
func (e *Engine) Run(ctx context.Context, text []byte) []byte {
	resp := e.Execute(ctx, text)
	out, err := json.Marshal(resp)
	if err != nil {
		e.logger.Error("encode response failed", slog.String("error", err.Error()))
		out, _ = json.Marshal(ErrorResponse{Error: "response encode error", Kind: "internal"})
	}
	return out
}

// Execute decodes and executes text, returning the response value.
func (e *Engine) Execute(ctx context.Context, text []byte) any {
	var env Envelope
	if !utf8.Valid(text) {
		return ErrorResponse{Error: "cmd json error", Kind: apperr.Kind(apperr.ErrDecode)}
	}
	if err := json.Unmarshal(text, &env); err != nil {
		return ErrorResponse{Error: "cmd json error", Kind: apperr.Kind(apperr.ErrDecode)}
	}
	e.logger.Debug("process cmd", slog.String("action", env.Action))

	resp, err := e.dispatch(ctx, env.Action, text)
	if err != nil {
		e.logger.Warn("cmd failed", slog.String("action", env.Action), slog.String("error", err.Error()))
		return ErrorResponse{Error: err.Error(), Kind: apperr.Kind(err)}
	}
	return resp
}

func (e *Engine) dispatch(ctx context.Context, action string, text []byte) (any, error) {
	switch action {
	case ActionInsert, ActionInsertImage:
		var c Insert
		if err := decode(action, text, &c); err != nil {
			return nil, err
		}
		return e.insert(ctx, action, c)

	case ActionDelete:
		var c Delete
		if err := decode(action, text, &c); err != nil {
			return nil, err
		}
		if err := e.notes.Delete(ctx, c.RowID); err != nil {
			return nil, err
		}
		return e.notes.Result(ctx, notes.Params{Query: c.Query, Limit: c.Limit, Offset: c.Offset})

	case ActionSelect:
		var c Select
		if err := decode(action, text, &c); err != nil {
			return nil, err
		}
		return e.notes.Result(ctx, notes.Params{Limit: c.Limit, Offset: c.Offset})

	case ActionSearch:
		var c Search
		if err := decode(action, text, &c); err != nil {
			return nil, err
		}
		return e.notes.Result(ctx, notes.Params{Query: c.Query, Limit: c.Limit, Offset: c.Offset})

	case ActionFilter:
		var c Filter
		if err := decode(action, text, &c); err != nil {
			return nil, err
		}
		return e.notes.Result(ctx, notes.Params{Query: c.Query, From: c.From, To: c.To, Limit: c.Limit, Offset: c.Offset})

	case ActionSyncViaAttach:
		var c SyncViaAttach
		if err := decode(action, text, &c); err != nil {
			return nil, err
		}
		if _, err := e.notes.SyncViaAttach(ctx, c.URI); err != nil {
			return nil, err
		}
		return map[string]string{"sync-via-attach-done": c.URI}, nil

	case ActionUpgrade:
		version, err := e.notes.Store().Migrate(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"upgraded": version}, nil

	case ActionServer, ActionClientSync, ActionClientStopServer:
		var c Peer
		if err := decode(action, text, &c); err != nil {
			return nil, err
		}
		return e.peer(ctx, action, c.Addr)
	}
	return ErrorResponse{Error: "cmd no match"}, nil
}

func (e *Engine) insert(ctx context.Context, action string, c Insert) (models.QueryResult, error) {
	n := models.Note{
		Title:       c.Title,
		URL:         c.URL,
		Tags:        c.Tags,
		Description: c.Description,
		Comments:    c.Comments,
		IsPublic:    c.IsPublic,
	}
	var err error
	if action == ActionInsertImage {
		_, err = e.notes.InsertImage(ctx, n, c.Annotations)
	} else {
		n.Annotations = []byte(c.Annotations)
		_, err = e.notes.Insert(ctx, n)
	}
	if err != nil {
		return models.QueryResult{}, err
	}
	return e.notes.Result(ctx, notes.Params{Limit: c.Limit, Offset: c.Offset})
}

func (e *Engine) peer(ctx context.Context, action, addr string) (any, error) {
	if e.peers == nil {
		return nil, fmt.Errorf("%s: sync is not available in this process: %w", action, apperr.ErrInternal)
	}
	switch action {
	case ActionServer:
		if err := e.peers.StartServer(ctx, addr); err != nil {
			return nil, err
		}
		return map[string]string{"server": "started"}, nil
	case ActionClientSync:
		summary, err := e.peers.ClientSync(ctx, addr)
		if err != nil {
			return nil, err
		}
		return map[string]string{"client-sync": summary}, nil
	default:
		if err := e.peers.StopServer(ctx, addr); err != nil {
			return nil, err
		}
		return map[string]string{"client-stop-server": "stopped"}, nil
	}
}

// decodeError renders as the bare "cmd <action> json error" message.
type decodeError struct {
	action string
}

func (e decodeError) Error() string { return "cmd " + e.action + " json error" }

func (e decodeError) Unwrap() error { return apperr.ErrDecode }

func decode(action string, text []byte, v any) error {
	if err := json.Unmarshal(text, v); err != nil {
		return decodeError{action: action}
	}
	return nil
}
