package transport

import (
	"crypto/ed25519"
	"crypto/subtle"
)

// Firewall decides whether a remote public key may complete the handshake.
type Firewall func(remote ed25519.PublicKey) bool

// AllowOnly admits exactly one public key.
func AllowOnly(key ed25519.PublicKey) Firewall {
	allowed := append(ed25519.PublicKey(nil), key...)
	return func(remote ed25519.PublicKey) bool {
		return len(remote) == len(allowed) && subtle.ConstantTimeCompare(remote, allowed) == 1
	}
}

// AllowAny admits every key. Only used by tests and tooling.
func AllowAny() Firewall {
	return func(ed25519.PublicKey) bool { return true }
}
