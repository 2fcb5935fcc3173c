package client

import (
	"context"
	"crypto/ed25519"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.lsp.dev/jsonrpc2"

	"github.com/LuKks/protobee/internal/core/domain"
	"github.com/LuKks/protobee/internal/protocol"
	"github.com/LuKks/protobee/internal/transport"
)

// link is the physical connection shared by a main handle and every handle
// derived from it. Each successful dial starts a new generation.
type link struct {
	addr      string
	serverKey ed25519.PublicKey
	client    transport.KeyPair
	cfg       *transport.Config
	maxTries  uint
	logger    *slog.Logger
	onSync    func()

	mu     sync.Mutex
	tc     *transport.Conn
	conn   jsonrpc2.Conn
	gen    uint64
	closed bool
}

// session is one generation of the link.
type session struct {
	conn jsonrpc2.Conn
	gen  uint64
}

// acquire returns the live connection, dialing a new one first when the
// previous one is gone. Concurrent callers share the dial.
func (l *link) acquire(ctx context.Context) (session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return session{}, domain.ErrHandleClosed
	}
	if l.aliveLocked() {
		return session{conn: l.conn, gen: l.gen}, nil
	}
	if l.conn != nil {
		l.conn.Close()
		l.logger.Info("connection lost, reconnecting", "generation", l.gen)
	}

	tc, err := backoff.Retry(ctx, func() (*transport.Conn, error) {
		return transport.Dial(ctx, l.addr, l.serverKey, l.client, l.cfg)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(l.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			l.logger.Debug("dial failed, retrying", "error", err, "wait", wait.String())
		}))
	if err != nil {
		l.conn, l.tc = nil, nil
		if ctx.Err() != nil {
			return session{}, ctx.Err()
		}
		return session{}, domain.ErrTransport.Wrap(err)
	}

	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(tc))
	conn.Go(context.Background(), l.handle)

	l.tc, l.conn = tc, conn
	l.gen++
	l.logger.Debug("connected", "address", l.addr, "generation", l.gen)
	return session{conn: conn, gen: l.gen}, nil
}

// current returns the live session without dialing.
func (l *link) current() (session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || !l.aliveLocked() {
		return session{}, false
	}
	return session{conn: l.conn, gen: l.gen}, true
}

func (l *link) aliveLocked() bool {
	if l.conn == nil || l.tc.IsClosed() {
		return false
	}
	select {
	case <-l.conn.Done():
		return false
	default:
		return true
	}
}

// handle serves requests the server initiates. Only sync pushes exist.
func (l *link) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	if req.Method() != protocol.MethodSync {
		return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.MethodNotFound, req.Method()))
	}
	if l.onSync != nil {
		l.onSync()
	}
	return reply(ctx, nil, nil)
}

func (l *link) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.conn == nil {
		return nil
	}
	l.conn.Close()
	return l.tc.Close()
}

// call issues one request on s. A call in flight when the connection drops
// fails with ErrTransport; it is not retried.
func (s session) call(ctx context.Context, method string, params, result any) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.conn.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	_, err := s.conn.Call(ctx, method, params, result)
	if err == nil {
		return nil
	}
	select {
	case <-s.conn.Done():
		if cerr := s.conn.Err(); cerr != nil {
			return domain.ErrTransport.Wrap(cerr)
		}
		return domain.ErrTransport.WithDetails("connection closed")
	default:
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return protocol.FromWire(err)
}
