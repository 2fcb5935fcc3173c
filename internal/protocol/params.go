package protocol

import (
	"encoding/json"

	"github.com/LuKks/protobee/internal/core/domain"
)

// TargetParams is accepted by sync, lock, flush and close.
type TargetParams struct {
	ID Target `json:"id"`
}

// PutParams is accepted by put. CAS is kept raw so that anything but a
// boolean can be rejected instead of silently coerced.
type PutParams struct {
	ID      Target            `json:"id"`
	Key     string            `json:"key"`
	Value   json.RawMessage   `json:"value"`
	CAS     json.RawMessage   `json:"cas,omitempty"`
	Options domain.KeyOptions `json:"options"`
}

// CASFlag decodes the cas field. Absent and null mean false.
func (p PutParams) CASFlag() (bool, error) {
	if len(p.CAS) == 0 || string(p.CAS) == "null" {
		return false, nil
	}
	var cas bool
	if err := json.Unmarshal(p.CAS, &cas); err != nil {
		return false, domain.ErrUnsupportedOption.WithDetails("cas must be a boolean")
	}
	return cas, nil
}

// KeyParams is accepted by get and del.
type KeyParams struct {
	ID      Target            `json:"id"`
	Key     string            `json:"key"`
	CAS     json.RawMessage   `json:"cas,omitempty"`
	Options domain.KeyOptions `json:"options"`
}

// RangeParams is accepted by peek and read-stream.
type RangeParams struct {
	ID      Target             `json:"id"`
	Range   domain.Range       `json:"range"`
	Options domain.ReadOptions `json:"options"`
}

// HistoryParams is accepted by history-stream.
type HistoryParams struct {
	ID      Target                `json:"id"`
	Options domain.HistoryOptions `json:"options"`
}

// DiffParams is accepted by diff-stream.
type DiffParams struct {
	ID           Target             `json:"id"`
	OtherVersion uint64             `json:"otherVersion"`
	Range        domain.Range       `json:"range"`
	Options      domain.ReadOptions `json:"options"`
}

// CheckoutParams is accepted by checkout.
type CheckoutParams struct {
	Version uint64             `json:"version"`
	Options domain.ViewOptions `json:"options"`
}

// SnapshotParams is accepted by snapshot.
type SnapshotParams struct {
	Options domain.ViewOptions `json:"options"`
}

// HeaderParams is accepted by getHeader.
type HeaderParams struct {
	ID      Target               `json:"id"`
	Options domain.HeaderOptions `json:"options"`
}

// StreamParams is accepted by stream-read and stream-destroy.
type StreamParams struct {
	StreamID uint32 `json:"streamId"`
}

// Decode unmarshals request params into v. Empty params decode as {}.
func Decode(params []byte, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		if domain.IsDomainError(err, "") {
			return err
		}
		return domain.ErrInvalidRequest.Wrap(err)
	}
	return nil
}
