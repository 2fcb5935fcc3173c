// Package protocol defines the protobee wire protocol: method names, request
// parameters, the version envelope and error mapping onto JSON-RPC 2.0.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/LuKks/protobee/internal/core/domain"
)

// ChannelType is the SSH channel type carrying the JSON-RPC stream.
const ChannelType = "protobee"

// Method names.
const (
	MethodSync          = "sync"
	MethodPut           = "put"
	MethodGet           = "get"
	MethodDel           = "del"
	MethodPeek          = "peek"
	MethodBatch         = "batch"
	MethodLock          = "lock"
	MethodFlush         = "flush"
	MethodCheckout      = "checkout"
	MethodSnapshot      = "snapshot"
	MethodReadStream    = "read-stream"
	MethodHistoryStream = "history-stream"
	MethodDiffStream    = "diff-stream"
	MethodStreamRead    = "stream-read"
	MethodStreamDestroy = "stream-destroy"
	MethodGetHeader     = "getHeader"
	MethodClose         = "close"
)

// Methods lists every request method, in protocol order.
var Methods = []string{
	MethodSync, MethodPut, MethodGet, MethodDel, MethodPeek,
	MethodBatch, MethodLock, MethodFlush, MethodCheckout, MethodSnapshot,
	MethodReadStream, MethodHistoryStream, MethodDiffStream, MethodStreamRead, MethodStreamDestroy,
	MethodGetHeader, MethodClose,
}

// Target selects the root database or a registered instance.
// On the wire the root is null (or absent) and an instance is its nonzero id.
type Target uint32

// Root addresses the server's root database.
const Root Target = 0

// Instance addresses the registered instance id.
func Instance(id uint32) Target { return Target(id) }

// IsRoot reports whether t addresses the root.
func (t Target) IsRoot() bool { return t == Root }

// ID returns the instance id; zero for the root.
func (t Target) ID() uint32 { return uint32(t) }

func (t Target) String() string {
	if t.IsRoot() {
		return "root"
	}
	return "instance(" + strconv.FormatUint(uint64(t), 10) + ")"
}

// MarshalJSON implements json.Marshaler.
func (t Target) MarshalJSON() ([]byte, error) {
	if t.IsRoot() {
		return []byte("null"), nil
	}
	return strconv.AppendUint(nil, uint64(t), 10), nil
}

// UnmarshalJSON implements json.Unmarshaler. An explicit 0 is rejected
// so that a client can never address the root by accident.
func (t *Target) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Root
		return nil
	}
	n, err := strconv.ParseUint(string(data), 10, 32)
	if err != nil {
		return domain.ErrInvalidRequest.WithDetails(fmt.Sprintf("invalid id %s", data))
	}
	if n == 0 {
		return domain.ErrInvalidRequest.WithDetails("id 0 is reserved")
	}
	*t = Target(n)
	return nil
}

// Envelope is the version watermark returned by every call.
type Envelope struct {
	Length  uint64
	Version uint64
}

type wireEnvelope struct {
	Core struct {
		Length uint64 `json:"length"`
	} `json:"core"`
	Bee struct {
		Version uint64 `json:"version"`
	} `json:"bee"`
}

// MarshalJSON encodes {"core":{"length":n},"bee":{"version":v}}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var w wireEnvelope
	w.Core.Length = e.Length
	w.Bee.Version = e.Version
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Length = w.Core.Length
	e.Version = w.Bee.Version
	return nil
}

// Merge returns the field-wise maximum of e and o.
func (e Envelope) Merge(o Envelope) Envelope {
	return Envelope{Length: max(e.Length, o.Length), Version: max(e.Version, o.Version)}
}

// Response wraps a method result with the envelope of the addressed target.
type Response[T any] struct {
	Out  T        `json:"out"`
	Sync Envelope `json:"sync"`
}

// StreamChunk is the result of one stream-read. Seq is the position of the
// read on its stream, so pipelined results can be put back in order.
type StreamChunk struct {
	Value json.RawMessage `json:"value"`
	Ended bool            `json:"ended"`
	Seq   uint64          `json:"seq"`
}
