// Package transport provides the authenticated, encrypted byte stream that
// carries protobee RPC between a client and a server.
//
// Both peers are identified by ed25519 keys. The stream is an SSH channel of
// type "protobee"; the server authenticates clients by public key and checks
// them against a Firewall, the client pins the server key.
package transport

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/LuKks/protobee/internal/core/domain"
	"github.com/LuKks/protobee/internal/protocol"
)

const (
	sshUser          = "protobee"
	keepAliveRequest = "keepalive@protobee"
	permissionKey    = "protobee-public-key"
)

// Config holds transport configuration.
type Config struct {
	// KeepAlive is the interval of liveness probes. A peer that misses a
	// probe for one full interval is considered gone. Zero disables probes.
	KeepAlive time.Duration

	// HandshakeTimeout bounds the SSH handshake and channel setup.
	HandshakeTimeout time.Duration

	// ChannelType is the SSH channel type carrying the RPC stream.
	ChannelType string
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() *Config {
	return &Config{
		KeepAlive:        5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ChannelType:      protocol.ChannelType,
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = def.HandshakeTimeout
	}
	if out.ChannelType == "" {
		out.ChannelType = def.ChannelType
	}
	return &out
}

// Listener accepts authenticated connections.
type Listener struct {
	ln     net.Listener
	cfg    *Config
	sshCfg *ssh.ServerConfig
	logger *slog.Logger
}

// Listen listens on addr with identity kp. Clients whose key fails fw are
// rejected during the handshake.
func Listen(addr string, kp KeyPair, fw Firewall, cfg *Config, logger *slog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	l, err := NewListener(ln, kp, fw, cfg, logger)
	if err != nil {
		ln.Close()
		return nil, err
	}
	return l, nil
}

// NewListener wraps an existing net.Listener.
func NewListener(ln net.Listener, kp KeyPair, fw Firewall, cfg *Config, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	signer, err := ssh.NewSignerFromKey(kp.Private)
	if err != nil {
		return nil, fmt.Errorf("host key: %w", err)
	}

	sshCfg := &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			pub, err := rawPublicKey(key)
			if err != nil {
				return nil, err
			}
			if fw != nil && !fw(pub) {
				return nil, domain.ErrFirewall
			}
			return &ssh.Permissions{Extensions: map[string]string{permissionKey: string(pub)}}, nil
		},
	}
	sshCfg.AddHostKey(signer)

	return &Listener{
		ln:     ln,
		cfg:    cfg.withDefaults(),
		sshCfg: sshCfg,
		logger: logger.With("component", "transport"),
	}, nil
}

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept waits for the next raw TCP connection. Call Handshake on it,
// usually from a new goroutine.
func (l *Listener) Accept() (net.Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := nc.(*net.TCPConn); ok && l.cfg.KeepAlive > 0 {
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(l.cfg.KeepAlive)
	}
	return nc, nil
}

// Close stops accepting connections. Established connections are unaffected.
func (l *Listener) Close() error { return l.ln.Close() }

// Handshake authenticates nc and waits for the client to open the RPC
// channel. nc is closed on failure.
func (l *Listener) Handshake(ctx context.Context, nc net.Conn) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.HandshakeTimeout)
	defer cancel()

	stop := context.AfterFunc(ctx, func() { nc.Close() })
	defer stop()

	sconn, chans, reqs, err := ssh.NewServerConn(nc, l.sshCfg)
	if err != nil {
		nc.Close()
		if errors.Is(err, domain.ErrFirewall) || isAuthFailure(err) {
			return nil, domain.ErrFirewall.Wrap(err)
		}
		return nil, domain.ErrTransport.Wrap(err)
	}
	go ssh.DiscardRequests(reqs)

	remote := ed25519.PublicKey(sconn.Permissions.Extensions[permissionKey])

	var ch ssh.Channel
	for ch == nil {
		var newCh ssh.NewChannel
		var ok bool
		select {
		case newCh, ok = <-chans:
		case <-ctx.Done():
			sconn.Close()
			return nil, domain.ErrTransport.Wrap(ctx.Err())
		}
		if !ok {
			return nil, domain.ErrTransport.WithDetails("connection closed before channel open")
		}
		if newCh.ChannelType() != l.cfg.ChannelType {
			newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		var chReqs <-chan *ssh.Request
		ch, chReqs, err = newCh.Accept()
		if err != nil {
			sconn.Close()
			return nil, domain.ErrTransport.Wrap(err)
		}
		go ssh.DiscardRequests(chReqs)
	}

	// One RPC channel per connection.
	go func() {
		for newCh := range chans {
			newCh.Reject(ssh.Prohibited, "channel already open")
		}
	}()

	if !stop() {
		// The handshake deadline fired after the channel was accepted.
		ch.Close()
		sconn.Close()
		return nil, domain.ErrTransport.Wrap(ctx.Err())
	}

	c := newConn(ch, sconn, remote, l.cfg.KeepAlive)
	l.logger.Debug("connection established", "remote_addr", c.RemoteAddr().String())
	return c, nil
}

func isAuthFailure(err error) bool {
	var se *ssh.ServerAuthError
	return errors.As(err, &se)
}

// Dial connects to addr, verifies that the server holds serverKey and opens
// the RPC channel authenticated as client.
func Dial(ctx context.Context, addr string, serverKey ed25519.PublicKey, client KeyPair, cfg *Config) (*Conn, error) {
	cfg = cfg.withDefaults()

	signer, err := ssh.NewSignerFromKey(client.Private)
	if err != nil {
		return nil, fmt.Errorf("client key: %w", err)
	}
	hostKey, err := sshPublicKey(serverKey)
	if err != nil {
		return nil, fmt.Errorf("server key: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()

	d := net.Dialer{KeepAlive: cfg.KeepAlive}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, domain.ErrTransport.Wrap(err)
	}

	stop := context.AfterFunc(ctx, func() { nc.Close() })
	defer stop()

	sshCfg := &ssh.ClientConfig{
		User:            sshUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.FixedHostKey(hostKey),
	}
	cconn, chans, reqs, err := ssh.NewClientConn(nc, addr, sshCfg)
	if err != nil {
		nc.Close()
		return nil, domain.ErrTransport.Wrap(err)
	}
	sc := ssh.NewClient(cconn, chans, reqs)

	ch, chReqs, err := sc.OpenChannel(cfg.ChannelType, nil)
	if err != nil {
		sc.Close()
		return nil, domain.ErrTransport.Wrap(err)
	}
	go ssh.DiscardRequests(chReqs)

	if !stop() {
		ch.Close()
		sc.Close()
		return nil, domain.ErrTransport.Wrap(ctx.Err())
	}

	return newConn(ch, cconn, serverKey, cfg.KeepAlive), nil
}

// Conn is an established RPC stream. It implements io.ReadWriteCloser.
type Conn struct {
	ch        ssh.Channel
	conn      ssh.Conn
	remoteKey ed25519.PublicKey

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ch ssh.Channel, conn ssh.Conn, remoteKey ed25519.PublicKey, keepAlive time.Duration) *Conn {
	c := &Conn{
		ch:        ch,
		conn:      conn,
		remoteKey: remoteKey,
		done:      make(chan struct{}),
	}
	go func() {
		conn.Wait()
		c.Close()
	}()
	if keepAlive > 0 {
		go c.keepAlive(keepAlive)
	}
	return c
}

// Read implements io.Reader.
func (c *Conn) Read(p []byte) (int, error) { return c.ch.Read(p) }

// Write implements io.Writer.
func (c *Conn) Write(p []byte) (int, error) { return c.ch.Write(p) }

// Close tears down the channel and the underlying connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.ch.Close()
		err = c.conn.Close()
		close(c.done)
	})
	return err
}

// IsClosed reports whether the connection has been closed.
func (c *Conn) IsClosed() bool { return c.closed.Load() }

// Done is closed once the connection is gone, from either side.
func (c *Conn) Done() <-chan struct{} { return c.done }

// RemoteKey returns the authenticated public key of the peer.
func (c *Conn) RemoteKey() ed25519.PublicKey { return c.remoteKey }

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// keepAlive probes the peer every interval and closes the connection when a
// probe goes unanswered for a full interval.
func (c *Conn) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		replied := make(chan error, 1)
		go func() {
			_, _, err := c.conn.SendRequest(keepAliveRequest, true, nil)
			replied <- err
		}()

		select {
		case err := <-replied:
			if err != nil {
				c.Close()
				return
			}
		case <-time.After(interval):
			c.Close()
			return
		case <-c.done:
			return
		}
	}
}
