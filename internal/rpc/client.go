package rpc

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/localnative/localnative/internal/apperr"
	"github.com/localnative/localnative/internal/models"
)

// Client calls a remote sync server.
type Client struct {
	addr string
	conn *grpc.ClientConn
	cfg  settings
}

// Dial connects to the sync server at addr, waiting at most the connect
// timeout for the channel to become ready.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	cfg := newSettings(opts)
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageBytes),
			grpc.MaxCallSendMsgSize(maxMessageBytes),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w: %w", addr, apperr.ErrIO, err)
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.connectTimeout)
	defer cancel()
	conn.Connect()
	for st := conn.GetState(); st != connectivity.Ready; st = conn.GetState() {
		if !conn.WaitForStateChange(cctx, st) {
			conn.Close()
			if ctx.Err() != nil {
				return nil, fmt.Errorf("rpc: dial %s: %w", addr, apperr.ErrCancelled)
			}
			return nil, fmt.Errorf("rpc: dial %s: connect timeout after %s: %w", addr, cfg.connectTimeout, apperr.ErrIO)
		}
	}

	cfg.logger.Debug("sync client connected", slog.String("addr", addr))
	return &Client{addr: addr, conn: conn, cfg: cfg}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, reply any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.callTimeout)
	defer cancel()
	return fromStatus(method, c.conn.Invoke(ctx, fullMethod(method), req, reply))
}

// IsVersionMatch asks the peer whether its schema version equals version.
func (c *Client) IsVersionMatch(ctx context.Context, version string) (bool, error) {
	reply := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, MethodIsVersionMatch, wrapperspb.String(version), reply); err != nil {
		return false, err
	}
	return reply.GetValue(), nil
}

// DiffToServer returns the candidates the peer does not have.
func (c *Client) DiffToServer(ctx context.Context, candidates []string) ([]string, error) {
	return c.diff(ctx, MethodDiffToServer, candidates)
}

// DiffFromServer returns the peer's uuid4s absent from candidates.
func (c *Client) DiffFromServer(ctx context.Context, candidates []string) ([]string, error) {
	return c.diff(ctx, MethodDiffFromServer, candidates)
}

func (c *Client) diff(ctx context.Context, method string, candidates []string) ([]string, error) {
	reply := new(structpb.ListValue)
	if err := c.invoke(ctx, method, uuidList(candidates), reply); err != nil {
		return nil, err
	}
	return uuidsFrom(reply)
}

// SendNote stores n on the peer.
func (c *Client) SendNote(ctx context.Context, n models.Note) error {
	return c.invoke(ctx, MethodSendNote, noteToProto(n), new(wrapperspb.BoolValue))
}

// ReceiveNote fetches the peer's note with the given uuid4.
func (c *Client) ReceiveNote(ctx context.Context, id string) (models.Note, error) {
	reply := new(structpb.Struct)
	if err := c.invoke(ctx, MethodReceiveNote, wrapperspb.String(id), reply); err != nil {
		return models.Note{}, err
	}
	return noteFromProto(reply)
}

// Stop asks the peer to stop its server.
func (c *Client) Stop(ctx context.Context) error {
	return c.invoke(ctx, MethodStop, wrapperspb.String("client-stop-server"), new(wrapperspb.BoolValue))
}
