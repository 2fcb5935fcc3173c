package domain

import "encoding/json"

// HeaderProtocol is the protocol name recorded in the header block.
const HeaderProtocol = "hyperbee"

// Entry types reported by the history stream.
const (
	EntryPut = "put"
	EntryDel = "del"
)

// Node is one key as seen at some version.
type Node struct {
	// Seq is the position of the append that wrote this value.
	Seq uint64 `json:"seq"`

	Key string `json:"key"`

	// Value is the raw JSON value.
	Value json.RawMessage `json:"value"`
}

// HistoryEntry is one append in the log.
// Value is JSON null for deletions.
type HistoryEntry struct {
	Type  string          `json:"type"`
	Seq   uint64          `json:"seq"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// DiffEntry pairs the state of a key in two versions. Either side is nil
// when the key is absent there.
type DiffEntry struct {
	Left  *Node `json:"left"`
	Right *Node `json:"right"`
}

// Header is the metadata block stored at seq 0.
type Header struct {
	Protocol string          `json:"protocol"`
	Metadata json.RawMessage `json:"metadata"`
}

// Range bounds a key scan. Empty bounds are open.
type Range struct {
	Gt  string `json:"gt,omitempty"`
	Gte string `json:"gte,omitempty"`
	Lt  string `json:"lt,omitempty"`
	Lte string `json:"lte,omitempty"`
}

// Contains reports whether key lies inside the range.
func (r Range) Contains(key string) bool {
	if r.Gt != "" && key <= r.Gt {
		return false
	}
	if r.Gte != "" && key < r.Gte {
		return false
	}
	if r.Lt != "" && key >= r.Lt {
		return false
	}
	if r.Lte != "" && key > r.Lte {
		return false
	}
	return true
}

// ReadOptions tunes key scans.
type ReadOptions struct {
	Reverse   bool   `json:"reverse,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// KeyOptions tunes point operations.
type KeyOptions struct {
	Namespace string `json:"namespace,omitempty"`
}

// PutOptions tunes put. CAS only ever means "skip when the stored value is
// structurally equal".
type PutOptions struct {
	CAS       bool   `json:"cas,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// HistoryOptions bounds a history scan by seq. Zero bounds are open.
type HistoryOptions struct {
	Gt        uint64 `json:"gt,omitempty"`
	Gte       uint64 `json:"gte,omitempty"`
	Lt        uint64 `json:"lt,omitempty"`
	Lte       uint64 `json:"lte,omitempty"`
	Reverse   bool   `json:"reverse,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// Contains reports whether seq lies inside the bounds.
func (o HistoryOptions) Contains(seq uint64) bool {
	if o.Gt != 0 && seq <= o.Gt {
		return false
	}
	if o.Gte != 0 && seq < o.Gte {
		return false
	}
	if o.Lt != 0 && seq >= o.Lt {
		return false
	}
	if o.Lte != 0 && seq > o.Lte {
		return false
	}
	return true
}

// ViewOptions configures a checkout or snapshot. The namespace becomes the
// default for every operation on the view.
type ViewOptions struct {
	Namespace string `json:"namespace,omitempty"`
}

// HeaderOptions is accepted by getHeader for forward compatibility.
type HeaderOptions struct{}
