package beeserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/LuKks/protobee/internal/core/domain"
	"github.com/LuKks/protobee/internal/protocol"
	"github.com/LuKks/protobee/internal/registry"
	"github.com/LuKks/protobee/internal/telemetry/logger"
	"github.com/LuKks/protobee/internal/telemetry/tracer"
	"github.com/LuKks/protobee/internal/transport"
)

// session is one authenticated connection. It owns the instances and stream
// handles registered through it.
type session struct {
	*domain.Session

	srv     *Server
	tc      *transport.Conn
	conn    jsonrpc2.Conn
	limiter *rate.Limiter
	logger  *slog.Logger

	// ctx is canceled when the connection goes away; handlers run under it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup

	push chan struct{}
}

func newSession(srv *Server, tc *transport.Conn) (*session, error) {
	info, err := domain.NewSession(tc.RemoteAddr().String(), transport.EncodeKey(tc.RemoteKey()))
	if err != nil {
		return nil, err
	}

	s := &session{
		Session: info,
		srv:     srv,
		tc:      tc,
		conn:    jsonrpc2.NewConn(jsonrpc2.NewStream(tc)),
		logger:  srv.logger.With("session_id", info.ID, "remote_addr", info.RemoteAddr),
		push:    make(chan struct{}, 1),
	}
	if srv.cfg.RateLimit > 0 {
		burst := srv.cfg.RateBurst
		if burst <= 0 {
			burst = srv.cfg.RateLimit
		}
		s.limiter = rate.NewLimiter(rate.Limit(srv.cfg.RateLimit), burst)
	}
	return s, nil
}

// serve runs the session until the connection closes, then releases
// everything the session owns.
func (s *session) serve(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(logger.WithSessionID(logger.WithLogger(ctx, s.logger), s.ID))
	defer s.cancel()

	s.logger.Info("client connected")

	s.conn.Go(s.ctx, s.handle)
	go s.pushLoop()

	select {
	case <-s.conn.Done():
	case <-s.tc.Done():
	case <-ctx.Done():
	}
	s.conn.Close()
	s.tc.Close()

	s.teardown()
	s.logger.Info("client disconnected", "duration", s.Age().Round(time.Millisecond).String())
}

// handle is called from the read loop; it must not block.
func (s *session) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	if s.limiter != nil && !s.limiter.Allow() {
		s.srv.metrics.IncRateLimited()
		return reply(ctx, nil, protocol.ToWire(domain.ErrRateLimited))
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	base := s.ctx
	if req.Method() == protocol.MethodStreamRead {
		base = s.queueStreamRead(base, req.Params())
	}

	go func() {
		defer s.inflight.Done()
		s.dispatch(base, reply, req)
	}()
	return nil
}

type queuedReadKey struct{}

// queuedRead is a stream-read whose turn was taken in the read loop.
type queuedRead struct {
	h streamHandle
	t ticket
}

// queueStreamRead reserves the stream's next turn while still on the read
// loop, so pipelined reads are served in arrival order. Anything it cannot
// resolve is left for the handler to report.
func (s *session) queueStreamRead(ctx context.Context, params json.RawMessage) context.Context {
	var p protocol.StreamParams
	if err := protocol.Decode(params, &p); err != nil {
		return ctx
	}
	h, err := s.srv.streams.Get(s, registry.ID(p.StreamID))
	if err != nil {
		return ctx
	}
	return context.WithValue(ctx, queuedReadKey{}, queuedRead{h: h, t: h.reserve()})
}

func (s *session) dispatch(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) {
	method := req.Method()
	start := time.Now()

	if call, ok := req.(*jsonrpc2.Call); ok {
		ctx = logger.WithRequestID(ctx, fmt.Sprint(call.ID()))
	}
	ctx, span := tracer.StartSpan(ctx, "protobee."+method,
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", method),
		attribute.String("protobee.session_id", s.ID))

	result, err := s.call(ctx, method, req.Params())
	tracer.EndSpan(span, err)

	code := "ok"
	if err != nil {
		de := protocol.Normalize(err)
		code = de.Code
		switch de.Code {
		case domain.ErrProtocolViolation.Code:
			logger.L(ctx).Warn("protocol violation", "method", method, "error", err)
		case domain.ErrEngine.Code:
			logger.L(ctx).Error("request failed", "method", method, "error", err)
		default:
			logger.L(ctx).Debug("request failed", "method", method, "error", err)
		}
	}
	s.srv.metrics.RecordRequest(method, code)
	s.srv.metrics.ObserveRequestDuration(method, time.Since(start).Seconds())

	if err != nil {
		err = reply(s.ctx, nil, protocol.ToWire(err))
	} else {
		err = reply(s.ctx, result, nil)
	}
	if err != nil {
		s.logger.Debug("reply failed", "method", method, "error", err)
	}
}

// schedulePush flags the session for a sync notification. A pending flag
// absorbs further pushes.
func (s *session) schedulePush() {
	select {
	case s.push <- struct{}{}:
	default:
	}
}

func (s *session) pushLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.push:
		}
		if err := s.conn.Notify(s.ctx, protocol.MethodSync, nil); err != nil {
			s.logger.Debug("sync push failed", "error", err)
			continue
		}
		s.srv.metrics.IncSyncPushes()
	}
}

// teardown cancels in-flight handlers, waits for them, then releases every
// owned instance and then every owned stream handle. Failures are logged.
func (s *session) teardown() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.cancel()
	s.inflight.Wait()

	instances, streams := 0, 0
	for {
		inst, ok := s.srv.instances.DrainOne(s)
		if !ok {
			break
		}
		if err := inst.Close(); err != nil {
			s.logger.Warn("release instance", "error", err)
		}
		instances++
	}
	for {
		h, ok := s.srv.streams.DrainOne(s)
		if !ok {
			break
		}
		h.Destroy()
		streams++
	}

	if instances > 0 || streams > 0 {
		s.logger.Debug("released session resources", "instances", instances, "streams", streams)
	}
}
