package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/LuKks/protobee/internal/core/domain"
)

// View is the operation surface shared by the root, batches and checkouts.
type View interface {
	// Version is the number of appends visible through the view, header included.
	Version() uint64
	// Length is the committed log length backing the view.
	Length() uint64

	Get(ctx context.Context, key string, opts domain.KeyOptions) (*domain.Node, error)
	Put(ctx context.Context, key string, value json.RawMessage, opts domain.PutOptions) error
	Del(ctx context.Context, key string, opts domain.KeyOptions) error
	Peek(ctx context.Context, rng domain.Range, opts domain.ReadOptions) (*domain.Node, error)

	ReadStream(rng domain.Range, opts domain.ReadOptions) iter.Seq2[*domain.Node, error]
	HistoryStream(opts domain.HistoryOptions) iter.Seq2[*domain.HistoryEntry, error]
	DiffStream(otherVersion uint64, rng domain.Range, opts domain.ReadOptions) iter.Seq2[*domain.DiffEntry, error]

	GetHeader(ctx context.Context, opts domain.HeaderOptions) (*domain.Header, error)
}

// Instance is a view derived from the root that must be released.
type Instance interface {
	View
	Close() error
}

var (
	_ View     = (*Engine)(nil)
	_ Instance = (*Batch)(nil)
	_ Instance = (*Checkout)(nil)
)

// op is one pending append.
type op struct {
	del   bool
	ukey  string
	value []byte
}

// Engine is the root of a versioned ordered store kept in Badger managed mode.
//
// Every append gets the next seq and is committed at timestamp seq+1, so a
// read transaction at timestamp v sees exactly the first v blocks.
type Engine struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger

	version atomic.Uint64
	writer  *semaphore.Weighted
	closed  atomic.Bool

	listenersMu sync.Mutex
	listeners   map[uint64]func()
	nextID      uint64

	// Metrics (internal counters)
	lastGCTime atomic.Int64 // Unix milliseconds
	appends    atomic.Uint64

	// Prometheus metrics
	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsVersion      prometheus.GaugeFunc
	metricsAppends      prometheus.CounterFunc
	metricsLastGCTime   prometheus.Gauge

	// Shutdown
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// Open opens (or creates) the store described by cfg.
func Open(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "storage")

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}

	badgerCfg := cfg.Badger
	if badgerCfg.CacheSize > 0 {
		opts.BlockCacheSize = badgerCfg.CacheSize
	}
	if badgerCfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = badgerCfg.ValueLogFileSize
	}
	if badgerCfg.NumMemtables > 0 {
		opts.NumMemtables = badgerCfg.NumMemtables
	}
	opts.SyncWrites = badgerCfg.SyncWrites && !cfg.InMemory
	opts.DetectConflicts = false

	db, err := badger.OpenManaged(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	e := &Engine{
		db:        db,
		cfg:       badgerCfg,
		logger:    logger,
		writer:    semaphore.NewWeighted(1),
		listeners: make(map[uint64]func()),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	if err := e.recover(cfg.Metadata); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.InMemory {
		close(e.doneCh)
	} else {
		go e.gcLoop()
	}

	logger.Info("badger engine started",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"version", e.Version())

	return e, nil
}

// recover loads the published version or writes the header block of a new store.
func (e *Engine) recover(metadata json.RawMessage) error {
	txn := e.db.NewTransactionAt(math.MaxUint64, false)
	item, err := txn.Get([]byte(versionKey))
	if err == nil {
		var raw []byte
		raw, err = item.ValueCopy(nil)
		txn.Discard()
		if err != nil {
			return fmt.Errorf("badger: read version: %w", err)
		}
		if len(raw) != 8 {
			return fmt.Errorf("badger: read version: %w", errCorruptRecord)
		}
		e.version.Store(binary.BigEndian.Uint64(raw))
		return nil
	}
	txn.Discard()
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("badger: read version: %w", err)
	}

	if len(metadata) == 0 {
		metadata = nullValue
	}
	header, err := json.Marshal(domain.Header{Protocol: domain.HeaderProtocol, Metadata: metadata})
	if err != nil {
		return fmt.Errorf("badger: encode header: %w", err)
	}

	wtxn := e.db.NewTransactionAt(0, true)
	defer wtxn.Discard()
	if err := wtxn.Set([]byte(headerKey), header); err != nil {
		return fmt.Errorf("badger: write header: %w", err)
	}
	if err := wtxn.Set([]byte(versionKey), versionValue(1)); err != nil {
		return fmt.Errorf("badger: write header: %w", err)
	}
	if err := wtxn.CommitAt(1, nil); err != nil {
		return fmt.Errorf("badger: write header: %w", err)
	}
	e.version.Store(1)
	return nil
}

func versionValue(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Version returns the number of committed blocks, header included.
func (e *Engine) Version() uint64 {
	return e.version.Load()
}

// Length equals Version for the root.
func (e *Engine) Length() uint64 {
	return e.version.Load()
}

// OnAppend registers fn to run after every committed append. fn must not block.
func (e *Engine) OnAppend(fn func()) (cancel func()) {
	e.listenersMu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.listenersMu.Unlock()

	return func() {
		e.listenersMu.Lock()
		delete(e.listeners, id)
		e.listenersMu.Unlock()
	}
}

func (e *Engine) notifyAppend() {
	e.listenersMu.Lock()
	fns := make([]func(), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.listenersMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Get returns the node stored at key, or nil.
func (e *Engine) Get(ctx context.Context, key string, opts domain.KeyOptions) (*domain.Node, error) {
	return e.get(e.Version(), userKey(opts.Namespace, key), key)
}

func (e *Engine) get(readTs uint64, ukey, key string) (*domain.Node, error) {
	if e.closed.Load() {
		return nil, domain.ErrEngineClosed
	}

	txn := e.db.NewTransactionAt(readTs, false)
	defer txn.Discard()

	item, err := txn.Get(dataKey(ukey))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("badger: get: %w", err)
	}
	rec, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("badger: get: %w", err)
	}
	return decodeNode(key, rec)
}

// Put appends a write of key. With CAS set, an equal value appends nothing.
func (e *Engine) Put(ctx context.Context, key string, value json.RawMessage, opts domain.PutOptions) error {
	value, err := normalizeValue(value)
	if err != nil {
		return err
	}
	ukey := userKey(opts.Namespace, key)

	if err := e.lock(ctx); err != nil {
		return err
	}
	appended, err := e.putLocked(ukey, key, value, opts.CAS)
	e.unlock()

	if appended {
		e.notifyAppend()
	}
	return err
}

func (e *Engine) putLocked(ukey, key string, value []byte, cas bool) (bool, error) {
	seq := e.Version()
	if cas {
		cur, err := e.get(seq, ukey, key)
		if err != nil {
			return false, err
		}
		if cur != nil && sameValue(cur.Value, value) {
			return false, nil
		}
	}
	if err := e.commit(seq, []op{{ukey: ukey, value: value}}); err != nil {
		return false, err
	}
	return true, nil
}

// Del appends a deletion of key. Deleting an absent key appends nothing.
func (e *Engine) Del(ctx context.Context, key string, opts domain.KeyOptions) error {
	ukey := userKey(opts.Namespace, key)

	if err := e.lock(ctx); err != nil {
		return err
	}
	appended, err := e.delLocked(ukey, key)
	e.unlock()

	if appended {
		e.notifyAppend()
	}
	return err
}

func (e *Engine) delLocked(ukey, key string) (bool, error) {
	seq := e.Version()
	cur, err := e.get(seq, ukey, key)
	if err != nil || cur == nil {
		return false, err
	}
	if err := e.commit(seq, []op{{del: true, ukey: ukey}}); err != nil {
		return false, err
	}
	return true, nil
}

// Peek returns the first node of the scan, or nil.
func (e *Engine) Peek(ctx context.Context, rng domain.Range, opts domain.ReadOptions) (*domain.Node, error) {
	return first(e.ReadStream(rng, opts))
}

// ReadStream scans keys in order as of the current version.
func (e *Engine) ReadStream(rng domain.Range, opts domain.ReadOptions) iter.Seq2[*domain.Node, error] {
	return limit(e.scan(e.Version(), opts.Namespace, rng, opts.Reverse), opts.Limit)
}

// HistoryStream scans the log as of the current version.
func (e *Engine) HistoryStream(opts domain.HistoryOptions) iter.Seq2[*domain.HistoryEntry, error] {
	return limit(e.history(e.Version(), opts.Namespace, opts), opts.Limit)
}

// DiffStream compares the current version (left) with otherVersion (right).
func (e *Engine) DiffStream(otherVersion uint64, rng domain.Range, opts domain.ReadOptions) iter.Seq2[*domain.DiffEntry, error] {
	return e.diffAt(e.scan(e.Version(), opts.Namespace, rng, opts.Reverse), otherVersion, rng, opts)
}

func (e *Engine) diffAt(left iter.Seq2[*domain.Node, error], otherVersion uint64, rng domain.Range, opts domain.ReadOptions) iter.Seq2[*domain.DiffEntry, error] {
	if otherVersion > e.Version() {
		return errSeq[*domain.DiffEntry](domain.ErrVersionOutOfRange.WithDetails(fmt.Sprintf("version %d", otherVersion)))
	}
	right := e.scan(otherVersion, opts.Namespace, rng, opts.Reverse)
	return limit(diff(left, right, opts.Reverse), opts.Limit)
}

// GetHeader returns the header block.
func (e *Engine) GetHeader(ctx context.Context, opts domain.HeaderOptions) (*domain.Header, error) {
	return e.header(e.Version())
}

func (e *Engine) header(readTs uint64) (*domain.Header, error) {
	if e.closed.Load() {
		return nil, domain.ErrEngineClosed
	}

	txn := e.db.NewTransactionAt(readTs, false)
	defer txn.Discard()

	item, err := txn.Get([]byte(headerKey))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("badger: get header: %w", err)
	}

	var h domain.Header
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &h)
	})
	if err != nil {
		return nil, fmt.Errorf("badger: decode header: %w", err)
	}
	return &h, nil
}

// Batch starts an atomic batch over the root.
func (e *Engine) Batch() *Batch {
	return &Batch{e: e, pending: make(map[string]*pendingNode)}
}

// Checkout opens a read-only view of the first version blocks.
func (e *Engine) Checkout(version uint64, opts domain.ViewOptions) (*Checkout, error) {
	if e.closed.Load() {
		return nil, domain.ErrEngineClosed
	}
	return &Checkout{e: e, version: version, ns: opts.Namespace, done: make(chan struct{})}, nil
}

// Snapshot opens a read-only view of the current version.
func (e *Engine) Snapshot(opts domain.ViewOptions) (*Checkout, error) {
	return e.Checkout(e.Version(), opts)
}

func (e *Engine) lock(ctx context.Context) error {
	if e.closed.Load() {
		return domain.ErrEngineClosed
	}
	if err := e.writer.Acquire(ctx, 1); err != nil {
		return err
	}
	if e.closed.Load() {
		e.writer.Release(1)
		return domain.ErrEngineClosed
	}
	return nil
}

func (e *Engine) unlock() {
	e.writer.Release(1)
}

// commit appends ops starting at seq base and publishes the new version.
// The caller holds the writer lock.
func (e *Engine) commit(base uint64, ops []op) error {
	if len(ops) == 0 {
		return nil
	}
	end := base + uint64(len(ops))

	if len(ops) == 1 {
		txn := e.db.NewTransactionAt(base, true)
		defer txn.Discard()
		if err := applyOp(txn.Set, txn.Delete, base, ops[0]); err != nil {
			return fmt.Errorf("badger: commit: %w", err)
		}
		if err := txn.Set([]byte(versionKey), versionValue(end)); err != nil {
			return fmt.Errorf("badger: commit: %w", err)
		}
		if err := txn.CommitAt(end, nil); err != nil {
			return fmt.Errorf("badger: commit: %w", err)
		}
	} else {
		wb := e.db.NewManagedWriteBatch()
		defer wb.Cancel()
		for i, o := range ops {
			seq := base + uint64(i)
			ts := seq + 1
			set := func(k, v []byte) error { return wb.SetEntryAt(badger.NewEntry(k, v), ts) }
			del := func(k []byte) error { return wb.DeleteAt(k, ts) }
			if err := applyOp(set, del, seq, o); err != nil {
				return fmt.Errorf("badger: commit batch: %w", err)
			}
		}
		if err := wb.Flush(); err != nil {
			return fmt.Errorf("badger: commit batch: %w", err)
		}

		// The version is published only once every entry is durable, so
		// recovery never reports a version whose entries are missing.
		txn := e.db.NewTransactionAt(end, true)
		defer txn.Discard()
		if err := txn.Set([]byte(versionKey), versionValue(end)); err != nil {
			return fmt.Errorf("badger: publish version: %w", err)
		}
		if err := txn.CommitAt(end, nil); err != nil {
			return fmt.Errorf("badger: publish version: %w", err)
		}
	}

	e.version.Store(end)
	e.appends.Add(uint64(len(ops)))
	return nil
}

func applyOp(set func(k, v []byte) error, del func(k []byte) error, seq uint64, o op) error {
	if o.del {
		if err := del(dataKey(o.ukey)); err != nil {
			return err
		}
		return set(historyKey(seq), encodeHistory(recordDel, o.ukey, nil))
	}
	if err := set(dataKey(o.ukey), encodeNode(seq, o.value)); err != nil {
		return err
	}
	return set(historyKey(seq), encodeHistory(recordPut, o.ukey, o.value))
}

// GC runs value log garbage collection until nothing more can be reclaimed.
func (e *Engine) GC(ctx context.Context) (int, error) {
	startTime := time.Now()

	runs := 0
	for ctx.Err() == nil {
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
				break
			}
			return runs, fmt.Errorf("gc: %w", err)
		}
		runs++
	}

	e.lastGCTime.Store(time.Now().UnixMilli())
	e.logger.Debug("gc completed",
		"rewrites", runs,
		"elapsed", time.Since(startTime))

	return runs, nil
}

// Close gracefully shuts down the engine.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.logger.Info("shutting down badger engine")

	e.stopOnce.Do(func() { close(e.stopCh) })
	<-e.doneCh

	// A batch left locked by its owner must not hold shutdown hostage.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.writer.Acquire(ctx, 1); err == nil {
		defer e.writer.Release(1)
	} else {
		e.logger.Warn("closing with writer lock held")
	}

	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	e.logger.Info("badger engine shutdown complete", "version", e.Version())
	return nil
}

// RegisterMetrics registers storage metrics with Prometheus.
func (e *Engine) RegisterMetrics(registry prometheus.Registerer) *Engine {
	e.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "protobee",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})

	e.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "protobee",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})

	e.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "protobee",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last value log GC run",
	})

	e.metricsVersion = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "protobee",
		Subsystem: "storage",
		Name:      "version",
		Help:      "Current root version of the store",
	}, func() float64 { return float64(e.Version()) })

	e.metricsAppends = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "protobee",
		Subsystem: "storage",
		Name:      "appends_total",
		Help:      "Blocks appended since the engine was opened",
	}, func() float64 { return float64(e.appends.Load()) })

	registry.MustRegister(
		e.metricsLSMSize,
		e.metricsValueLogSize,
		e.metricsLastGCTime,
		e.metricsVersion,
		e.metricsAppends,
	)

	go e.metricsUpdateLoop()

	return e
}

func (e *Engine) metricsUpdateLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if e.closed.Load() {
				return
			}
			lsm, vlog := e.db.Size()
			e.metricsLSMSize.Set(float64(lsm))
			e.metricsValueLogSize.Set(float64(vlog))
			if t := e.lastGCTime.Load(); t > 0 {
				e.metricsLastGCTime.Set(float64(t) / 1000.0)
			}

		case <-e.stopCh:
			return
		}
	}
}

// gcLoop runs periodic garbage collection.
func (e *Engine) gcLoop() {
	defer close(e.doneCh)

	interval, err := time.ParseDuration(e.cfg.GCInterval)
	if err != nil || interval <= 0 {
		e.logger.Error("invalid gc_interval, using default 10m", "error", err)
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.GC(ctx); err != nil {
				e.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-e.stopCh:
			return
		}
	}
}

func first[T any](seq iter.Seq2[*T, error]) (*T, error) {
	for v, err := range seq {
		return v, err
	}
	return nil, nil
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
