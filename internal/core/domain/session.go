package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionIDPrefix is the prefix for connection session IDs.
const SessionIDPrefix = "pbss-"

// Session describes one authenticated client connection on the server.
type Session struct {
	// ID is the unique identifier for the session.
	// Format: pbss-{ulid_lowercase}, 31 characters total.
	ID string `json:"id"`

	// RemoteAddr is the network address of the peer.
	RemoteAddr string `json:"remote_addr"`

	// ClientKey is the hex encoded public key the peer authenticated with.
	ClientKey string `json:"client_key"`

	// ConnectedAt is the handshake completion timestamp (Unix milliseconds).
	ConnectedAt int64 `json:"connected_at"`
}

// NewSession creates a session record for a freshly authenticated peer.
func NewSession(remoteAddr, clientKey string) (*Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ClientKey:   clientKey,
		ConnectedAt: time.Now().UnixMilli(),
	}, nil
}

// GenerateSessionID generates a new session ID using ULID.
func GenerateSessionID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrTransport.WithCause(err)
	}
	return SessionIDPrefix + strings.ToLower(id.String()), nil
}

// IsValidSessionID checks if a string is a valid session ID format.
func IsValidSessionID(id string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, SessionIDPrefix) {
		return false
	}
	if len(id) != len(SessionIDPrefix)+26 {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(id[len(SessionIDPrefix):]))
	return err == nil
}

// Age returns how long the session has been connected.
func (s *Session) Age() time.Duration {
	return time.Since(time.UnixMilli(s.ConnectedAt))
}
