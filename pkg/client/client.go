package client

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/LuKks/protobee/internal/core/domain"
	"github.com/LuKks/protobee/internal/protocol"
	"github.com/LuKks/protobee/internal/transport"
)

// DefaultAddress is where New dials unless WithAddress is given.
const DefaultAddress = "127.0.0.1:7460"

// Kind is the kind of a handle.
type Kind int

const (
	// KindMain owns the connection and addresses the root database.
	KindMain Kind = iota
	// KindBatch collects writes that become visible on Flush.
	KindBatch
	// KindCheckout is a read-only view of a past version.
	KindCheckout
	// KindSnapshot is a read-only view of the version current when opened.
	KindSnapshot
)

func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindBatch:
		return "batch"
	case KindCheckout:
		return "checkout"
	case KindSnapshot:
		return "snapshot"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// State is the lifecycle state of a handle.
type State int

const (
	StateConnecting State = iota
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type options struct {
	addr             string
	logger           *slog.Logger
	keepAlive        time.Duration
	handshakeTimeout time.Duration
	maxTries         uint
}

// Option configures New and Open.
type Option func(*options)

// WithAddress sets the server address (default: DefaultAddress).
func WithAddress(addr string) Option {
	return func(o *options) { o.addr = addr }
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithKeepAlive sets the liveness probe interval (default: 5s, 0 disables).
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) { o.keepAlive = d }
}

// WithHandshakeTimeout bounds each dial attempt (default: 10s).
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) { o.handshakeTimeout = d }
}

// WithMaxTries sets how many dial attempts a (re)connect makes (default: 2).
func WithMaxTries(n uint) Option {
	return func(o *options) { o.maxTries = n }
}

// DB is a handle on a remote database. The main handle returned by New owns
// the connection; Batch, Checkout and Snapshot return derived handles that
// share it and address a server-side instance.
//
// A DB is safe for concurrent use.
type DB struct {
	kind   Kind
	root   *DB
	link   *link
	logger *slog.Logger

	ready   chan struct{}
	openErr error

	mu      sync.Mutex
	env     protocol.Envelope
	id      protocol.Target
	gen     uint64
	state   State
	flushed bool

	closeCalled bool

	refresh *refresher
	ctx     context.Context
	cancel  context.CancelFunc
}

// New returns the main handle for the server identified by serverKey, using
// the client primary key handed out by that server. It connects in the
// background; operations wait until the handle is ready.
func New(serverKey, primaryKey []byte, opts ...Option) (*DB, error) {
	o := options{
		addr:             DefaultAddress,
		logger:           slog.Default(),
		keepAlive:        5 * time.Second,
		handshakeTimeout: 10 * time.Second,
		maxTries:         2,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if len(serverKey) != ed25519.PublicKeySize {
		return nil, transport.ErrKeyLength
	}
	kp, err := transport.KeyPairFromSeed(primaryKey)
	if err != nil {
		return nil, err
	}

	db := &DB{
		kind:   KindMain,
		logger: o.logger.With("component", "protobee-client"),
		ready:  make(chan struct{}),
		env:    protocol.Envelope{Version: 1},
	}
	db.ctx, db.cancel = context.WithCancel(context.Background())
	db.refresh = newRefresher(db.backgroundUpdate)
	db.link = &link{
		addr:      o.addr,
		serverKey: ed25519.PublicKey(serverKey),
		client:    kp,
		cfg: &transport.Config{
			KeepAlive:        o.keepAlive,
			HandshakeTimeout: o.handshakeTimeout,
			ChannelType:      protocol.ChannelType,
		},
		maxTries: max(o.maxTries, 1),
		logger:   db.logger,
		onSync:   db.refresh.Trigger,
	}

	go db.open(func(ctx context.Context) error {
		s, err := db.link.acquire(ctx)
		if err != nil {
			return err
		}
		var env protocol.Envelope
		if err := s.call(ctx, protocol.MethodSync, protocol.TargetParams{}, &env); err != nil {
			return err
		}
		db.apply(env)
		return nil
	})
	return db, nil
}

// Open is New followed by Ready.
func Open(ctx context.Context, serverKey, primaryKey []byte, opts ...Option) (*DB, error) {
	db, err := New(serverKey, primaryKey, opts...)
	if err != nil {
		return nil, err
	}
	if err := db.Ready(ctx); err != nil {
		db.Close(context.Background())
		return nil, err
	}
	return db, nil
}

// open runs fn and moves the handle to Ready, or records why it failed.
func (db *DB) open(fn func(ctx context.Context) error) {
	err := fn(db.ctx)

	db.mu.Lock()
	if err != nil {
		db.openErr = err
		db.state = StateClosed
	} else if db.state == StateConnecting {
		db.state = StateReady
	}
	db.mu.Unlock()

	if err != nil {
		db.logger.Warn("open failed", "kind", db.kind.String(), "error", err)
	}
	close(db.ready)
}

// Ready waits until the handle is open.
func (db *DB) Ready(ctx context.Context) error {
	select {
	case <-db.ready:
		return db.openErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kind returns the handle kind.
func (db *DB) Kind() Kind { return db.kind }

// State returns the lifecycle state.
func (db *DB) State() State {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state
}

// Version returns the highest version this handle has observed.
func (db *DB) Version() uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.env.Version
}

// Length returns the highest log length this handle has observed.
func (db *DB) Length() uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.env.Length
}

// apply raises the watermark; it never lowers it.
func (db *DB) apply(env protocol.Envelope) {
	db.mu.Lock()
	db.env = db.env.Merge(env)
	db.mu.Unlock()
}

func (db *DB) envelope() protocol.Envelope {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.env
}

func (db *DB) target() protocol.Target {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.id
}

// connect waits for Ready and returns the connection to use. Derived handles
// only work on the connection generation they were opened on.
func (db *DB) connect(ctx context.Context) (session, error) {
	if err := db.Ready(ctx); err != nil {
		return session{}, err
	}

	db.mu.Lock()
	state, gen := db.state, db.gen
	db.mu.Unlock()
	if state == StateClosing || state == StateClosed {
		return session{}, domain.ErrHandleClosed
	}

	s, err := db.link.acquire(ctx)
	if err != nil {
		return session{}, err
	}
	if db.kind != KindMain && s.gen != gen {
		return session{}, domain.ErrInstanceLost
	}
	return s, nil
}

// request calls method and merges the returned envelope into db. params is
// built once the handle is ready, so derived handles address their own
// instance rather than the root.
func request[T any](ctx context.Context, db *DB, method string, params func(protocol.Target) any) (T, error) {
	var zero T
	s, err := db.connect(ctx)
	if err != nil {
		return zero, err
	}
	var resp protocol.Response[T]
	if err := s.call(ctx, method, params(db.target()), &resp); err != nil {
		return zero, err
	}
	db.apply(resp.Sync)
	return resp.Out, nil
}

// derive creates a handle of kind sharing db's connection and opens it in
// the background with method.
func (db *DB) derive(kind Kind, env protocol.Envelope, method string, params any) *DB {
	d := &DB{
		kind:   kind,
		root:   db,
		link:   db.link,
		logger: db.logger,
		ready:  make(chan struct{}),
		env:    env,
	}
	d.ctx, d.cancel = context.WithCancel(db.ctx)

	go d.open(func(ctx context.Context) error {
		if err := db.Ready(ctx); err != nil {
			return err
		}
		s, err := db.link.acquire(ctx)
		if err != nil {
			return err
		}
		var resp protocol.Response[uint32]
		if err := s.call(ctx, method, params, &resp); err != nil {
			return err
		}

		d.mu.Lock()
		d.id = protocol.Instance(resp.Out)
		d.gen = s.gen
		d.env = d.env.Merge(resp.Sync)
		d.mu.Unlock()
		return nil
	})
	return d
}

// backgroundUpdate is the refresh run for sync pushes.
func (db *DB) backgroundUpdate() {
	if err := db.Update(db.ctx); err != nil && !errors.Is(err, context.Canceled) {
		db.logger.Debug("background update failed", "error", err)
	}
}

// Close releases the handle. A derived handle that was not flushed releases
// its server-side instance first, unless the connection is already gone.
// Closing the main handle closes the connection.
func (db *DB) Close(ctx context.Context) error {
	db.mu.Lock()
	if db.closeCalled {
		db.mu.Unlock()
		return nil
	}
	db.closeCalled = true
	if db.state != StateClosed {
		db.state = StateClosing
	}
	db.mu.Unlock()

	// An open still in flight must settle before its instance can be released.
	var err error
	select {
	case <-db.ready:
	case <-ctx.Done():
		db.cancel()
		<-db.ready
	}

	if db.kind != KindMain {
		err = db.release(ctx)
	}
	db.cancel()

	db.mu.Lock()
	db.state = StateClosed
	db.mu.Unlock()

	if db.kind == KindMain {
		if cerr := db.link.close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (db *DB) release(ctx context.Context) error {
	db.mu.Lock()
	id, gen, flushed := db.id, db.gen, db.flushed
	db.mu.Unlock()

	if db.openErr != nil || flushed || id.IsRoot() {
		return nil
	}
	s, ok := db.link.current()
	if !ok || s.gen != gen {
		return nil
	}
	var resp protocol.Response[any]
	if err := s.call(ctx, protocol.MethodClose, protocol.TargetParams{ID: id}, &resp); err != nil {
		return err
	}
	db.apply(resp.Sync)
	return nil
}
