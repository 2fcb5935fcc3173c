package benchmark

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/LuKks/protobee/internal/core/domain"
	"github.com/LuKks/protobee/internal/storage"
	"github.com/LuKks/protobee/internal/telemetry/logger"
)

// KeyCounts defines the preload sizes for benchmarking.
var KeyCounts = []int{1000, 10000, 100000}

// SmallKeyCounts for quick benchmarks.
var SmallKeyCounts = []int{100, 1000, 10000}

var entropy = ulid.Monotonic(rand.Reader, 0)

// newKey returns a unique, time ordered key.
func newKey() string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return "/items/" + strings.ToLower(id.String())
}

// newValue returns a small JSON document.
func newValue(i int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"n":%d,"name":"item-%d","tags":["a","b"]}`, i, i))
}

// openEngine opens an in-memory engine closed at the end of the benchmark.
func openEngine(b *testing.B) *storage.Engine {
	b.Helper()
	engine, err := storage.Open(storage.Config{InMemory: true}, logger.Discard())
	if err != nil {
		b.Fatalf("storage.Open() error = %v", err)
	}
	b.Cleanup(func() { engine.Close() })
	return engine
}

// prefill writes count keys in batches and returns them in insertion order.
func prefill(b *testing.B, engine *storage.Engine, count int) []string {
	b.Helper()
	ctx := context.Background()
	keys := make([]string, count)

	const chunk = 1000
	for start := 0; start < count; start += chunk {
		batch := engine.Batch()
		for i := start; i < min(start+chunk, count); i++ {
			keys[i] = newKey()
			if err := batch.Put(ctx, keys[i], newValue(i), domain.PutOptions{}); err != nil {
				b.Fatalf("prefill put: %v", err)
			}
		}
		if err := batch.Flush(ctx); err != nil {
			b.Fatalf("prefill flush: %v", err)
		}
	}
	return keys
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithKeyCounts runs a benchmark function with various preload sizes.
func runWithKeyCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("keys_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
