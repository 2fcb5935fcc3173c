package storage

import (
	"iter"
	"math"
	"sort"

	"github.com/dgraph-io/badger/v3"

	"github.com/LuKks/protobee/internal/core/domain"
)

// scan yields the nodes of namespace ns inside rng as of readTs.
func (e *Engine) scan(readTs uint64, ns string, rng domain.Range, reverse bool) iter.Seq2[*domain.Node, error] {
	return func(yield func(*domain.Node, error) bool) {
		if e.closed.Load() {
			yield(nil, domain.ErrEngineClosed)
			return
		}

		prefix := []byte(dataPrefix + nsPrefix(ns))
		txn := e.db.NewTransactionAt(readTs, false)
		defer txn.Discard()

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekKey(prefix, rng, reverse)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefix):])
			if !rng.Contains(key) {
				if pastEnd(key, rng, reverse) {
					return
				}
				continue
			}

			rec, err := item.ValueCopy(nil)
			if err != nil {
				yield(nil, err)
				return
			}
			node, err := decodeNode(key, rec)
			if !yield(node, err) || err != nil {
				return
			}
		}
	}
}

func seekKey(prefix []byte, rng domain.Range, reverse bool) []byte {
	k := append([]byte(nil), prefix...)
	if reverse {
		switch {
		case rng.Lte != "":
			return append(k, rng.Lte...)
		case rng.Lt != "":
			return append(k, rng.Lt...)
		default:
			return append(k, 0xff)
		}
	}
	switch {
	case rng.Gte != "":
		return append(k, rng.Gte...)
	case rng.Gt != "":
		return append(k, rng.Gt...)
	default:
		return k
	}
}

// pastEnd reports whether key lies beyond the far bound in scan direction.
func pastEnd(key string, rng domain.Range, reverse bool) bool {
	if reverse {
		return (rng.Gt != "" && key <= rng.Gt) || (rng.Gte != "" && key < rng.Gte)
	}
	return (rng.Lt != "" && key >= rng.Lt) || (rng.Lte != "" && key > rng.Lte)
}

// history yields log entries with seq below end, filtered to namespace ns.
func (e *Engine) history(end uint64, ns string, opts domain.HistoryOptions) iter.Seq2[*domain.HistoryEntry, error] {
	return func(yield func(*domain.HistoryEntry, error) bool) {
		if e.closed.Load() {
			yield(nil, domain.ErrEngineClosed)
			return
		}

		lo, hi := seqBounds(opts, end)
		if lo >= hi {
			return
		}

		prefix := []byte(historyPrefix)
		txn := e.db.NewTransactionAt(end, false)
		defer txn.Discard()

		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = prefix
		iopts.Reverse = opts.Reverse
		it := txn.NewIterator(iopts)
		defer it.Close()

		start := lo
		if opts.Reverse {
			start = hi - 1
		}

		for it.Seek(historyKey(start)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			seq := historySeq(item.Key())
			if seq < lo || seq >= hi {
				return
			}

			rec, err := item.ValueCopy(nil)
			if err != nil {
				yield(nil, err)
				return
			}
			typ, ukey, value, err := decodeHistory(seq, rec)
			if err != nil {
				yield(nil, err)
				return
			}
			key, ok := stripNamespace(ns, ukey)
			if !ok {
				continue
			}
			if !yield(historyEntry(seq, typ, key, value), nil) {
				return
			}
		}
	}
}

// seqBounds turns history options into a half open [lo, hi) interval.
// Seq 0 is the header and never part of the history.
func seqBounds(opts domain.HistoryOptions, end uint64) (lo, hi uint64) {
	lo, hi = 1, end
	if opts.Gte > lo {
		lo = opts.Gte
	}
	if opts.Gt != 0 && opts.Gt+1 > lo {
		lo = opts.Gt + 1
	}
	if opts.Lt != 0 && opts.Lt < hi {
		hi = opts.Lt
	}
	if opts.Lte != 0 && opts.Lte < math.MaxUint64 && opts.Lte+1 < hi {
		hi = opts.Lte + 1
	}
	return lo, hi
}

func historyEntry(seq uint64, typ byte, key string, value []byte) *domain.HistoryEntry {
	entry := &domain.HistoryEntry{Type: domain.EntryPut, Seq: seq, Key: key, Value: value}
	if typ == recordDel {
		entry.Type = domain.EntryDel
		entry.Value = nullValue
	}
	return entry
}

// limit stops a sequence after n items. n <= 0 means unlimited.
func limit[T any](seq iter.Seq2[T, error], n int) iter.Seq2[T, error] {
	if n <= 0 {
		return seq
	}
	return func(yield func(T, error) bool) {
		count := 0
		for v, err := range seq {
			if !yield(v, err) || err != nil {
				return
			}
			count++
			if count >= n {
				return
			}
		}
	}
}

// overlayNode is a pending batch write as seen by reads. Node is nil for deletions.
type overlayNode struct {
	key  string
	node *domain.Node
}

// sortedOverlay returns the pending writes inside rng ordered for the scan.
func sortedOverlay(pending map[string]*pendingNode, ns string, rng domain.Range, reverse bool) []overlayNode {
	out := make([]overlayNode, 0, len(pending))
	for ukey, p := range pending {
		key, ok := stripNamespace(ns, ukey)
		if !ok || !rng.Contains(key) {
			continue
		}
		o := overlayNode{key: key}
		if !p.del {
			o.node = &domain.Node{Seq: p.seq, Key: key, Value: p.value}
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if reverse {
			return out[i].key > out[j].key
		}
		return out[i].key < out[j].key
	})
	return out
}

// mergeOverlay merges pending writes over a committed scan. Pending entries win on equal keys.
func mergeOverlay(base iter.Seq2[*domain.Node, error], overlay []overlayNode, reverse bool) iter.Seq2[*domain.Node, error] {
	if len(overlay) == 0 {
		return base
	}
	return func(yield func(*domain.Node, error) bool) {
		next, stop := iter.Pull2(base)
		defer stop()

		before := func(a, b string) bool {
			if reverse {
				return a > b
			}
			return a < b
		}

		cur, err, ok := next()
		i := 0
		for ok || i < len(overlay) {
			if ok && err != nil {
				yield(nil, err)
				return
			}
			switch {
			case i < len(overlay) && (!ok || before(overlay[i].key, cur.Key)):
				if o := overlay[i]; o.node != nil && !yield(o.node, nil) {
					return
				}
				i++
			case i < len(overlay) && ok && overlay[i].key == cur.Key:
				if o := overlay[i]; o.node != nil && !yield(o.node, nil) {
					return
				}
				i++
				cur, err, ok = next()
			default:
				if !yield(cur, nil) {
					return
				}
				cur, err, ok = next()
			}
		}
	}
}

// diff pairs two ordered node sequences by key, skipping keys whose node is unchanged.
func diff(left, right iter.Seq2[*domain.Node, error], reverse bool) iter.Seq2[*domain.DiffEntry, error] {
	return func(yield func(*domain.DiffEntry, error) bool) {
		nextL, stopL := iter.Pull2(left)
		defer stopL()
		nextR, stopR := iter.Pull2(right)
		defer stopR()

		before := func(a, b string) bool {
			if reverse {
				return a > b
			}
			return a < b
		}

		l, errL, okL := nextL()
		r, errR, okR := nextR()
		for okL || okR {
			if okL && errL != nil {
				yield(nil, errL)
				return
			}
			if okR && errR != nil {
				yield(nil, errR)
				return
			}

			var entry *domain.DiffEntry
			switch {
			case okL && (!okR || before(l.Key, r.Key)):
				entry = &domain.DiffEntry{Left: l}
				l, errL, okL = nextL()
			case okR && (!okL || before(r.Key, l.Key)):
				entry = &domain.DiffEntry{Right: r}
				r, errR, okR = nextR()
			default:
				if l.Seq != r.Seq {
					entry = &domain.DiffEntry{Left: l, Right: r}
				}
				l, errL, okL = nextL()
				r, errR, okR = nextR()
			}

			if entry != nil && !yield(entry, nil) {
				return
			}
		}
	}
}

// errSeq yields a single error.
func errSeq[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}
