package client

import (
	"github.com/LuKks/protobee/internal/core/domain"
)

type (
	// Node is one key as seen at some version.
	Node = domain.Node
	// HistoryEntry is one append in the log.
	HistoryEntry = domain.HistoryEntry
	// DiffEntry pairs the state of a key in two versions.
	DiffEntry = domain.DiffEntry
	// Header is the metadata block stored at seq 0.
	Header = domain.Header

	Range          = domain.Range
	ReadOptions    = domain.ReadOptions
	KeyOptions     = domain.KeyOptions
	PutOptions     = domain.PutOptions
	HistoryOptions = domain.HistoryOptions
	ViewOptions    = domain.ViewOptions
	HeaderOptions  = domain.HeaderOptions
)

// DelOptions tunes Del. CAS is not supported on deletions; setting it fails
// with ErrUnsupportedOption.
type DelOptions struct {
	CAS       bool
	Namespace string
}

// Errors returned by DB operations. Errors produced by the server carry the
// same identity, so errors.Is works across the connection.
var (
	ErrReadOnly          = domain.ErrReadOnly
	ErrNotBatch          = domain.ErrNotBatch
	ErrNestedDerivation  = domain.ErrNestedDerivation
	ErrUnsupportedOption = domain.ErrUnsupportedOption
	ErrHandleClosed      = domain.ErrHandleClosed
	ErrInstanceLost      = domain.ErrInstanceLost
	ErrTransport         = domain.ErrTransport
	ErrProtocolViolation = domain.ErrProtocolViolation
	ErrVersionOutOfRange = domain.ErrVersionOutOfRange
	ErrRateLimited       = domain.ErrRateLimited
	ErrEngine            = domain.ErrEngine
)

// Versioned is anything that names a version: a DB handle or AtVersion.
type Versioned interface {
	Version() uint64
}

// AtVersion names a fixed version.
type AtVersion uint64

// Version implements Versioned.
func (v AtVersion) Version() uint64 { return uint64(v) }
