package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/ssh"
)

// KeyLength is the length of primary keys and key pair seeds.
const KeyLength = 32

// HKDF info strings for the derived keys.
const (
	infoServerKey = "protobee/v1 server identity"
	infoClientKey = "protobee/v1 client primary key"
)

var (
	ErrKeyLength     = errors.New("transport: key must be 32 bytes")
	ErrPublicKeyType = errors.New("transport: remote key is not ed25519")
)

// KeyPair is an ed25519 identity.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// KeyPairFromSeed builds the key pair deterministically derived from a 32 byte seed.
func KeyPairFromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != KeyLength {
		return KeyPair{}, ErrKeyLength
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Keys are the identities a server derives from its primary key.
type Keys struct {
	// Server is the identity the server listens with.
	Server KeyPair

	// ClientPrimaryKey is handed to the single trusted client; the client's
	// key pair is derived from it with KeyPairFromSeed.
	ClientPrimaryKey []byte

	// Client is the key pair derived from ClientPrimaryKey. Its public half is
	// the only identity the server's firewall admits.
	Client KeyPair
}

// DeriveKeys derives the server identity and the client primary key from primaryKey.
func DeriveKeys(primaryKey []byte) (Keys, error) {
	serverSeed, err := DeriveSubkey(primaryKey, infoServerKey, KeyLength)
	if err != nil {
		return Keys{}, err
	}
	clientPrimary, err := DeriveSubkey(primaryKey, infoClientKey, KeyLength)
	if err != nil {
		return Keys{}, err
	}

	server, err := KeyPairFromSeed(serverSeed)
	if err != nil {
		return Keys{}, err
	}
	client, err := KeyPairFromSeed(clientPrimary)
	if err != nil {
		return Keys{}, err
	}
	return Keys{Server: server, ClientPrimaryKey: clientPrimary, Client: client}, nil
}

// DeriveSubkey derives a subkey from a master key using HKDF.
func DeriveSubkey(masterKey []byte, info string, length int) ([]byte, error) {
	if len(masterKey) != KeyLength {
		return nil, ErrKeyLength
	}

	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("transport: derive subkey: %w", err)
	}
	return key, nil
}

// GenerateKey generates a random primary key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("transport: generate key: %w", err)
	}
	return key, nil
}

// EncodeKey returns the hex form used in configuration and logs.
func EncodeKey(key []byte) string {
	return hex.EncodeToString(key)
}

// DecodeKey parses a hex encoded 32 byte key.
func DecodeKey(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("transport: decode key: %w", err)
	}
	if len(b) != KeyLength {
		return nil, ErrKeyLength
	}
	return b, nil
}

// DecodePublicKey parses a hex encoded ed25519 public key.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	b, err := DecodeKey(s)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(b), nil
}

func sshPublicKey(pub ed25519.PublicKey) (ssh.PublicKey, error) {
	return ssh.NewPublicKey(pub)
}

// rawPublicKey extracts the ed25519 key behind an SSH public key.
func rawPublicKey(key ssh.PublicKey) (ed25519.PublicKey, error) {
	ck, ok := key.(ssh.CryptoPublicKey)
	if !ok {
		return nil, ErrPublicKeyType
	}
	pub, ok := ck.CryptoPublicKey().(ed25519.PublicKey)
	if !ok {
		return nil, ErrPublicKeyType
	}
	return pub, nil
}
