// Package pool keeps persistent transport streams open per origin so
// repeated requests skip the TCP and TLS handshakes.
package pool

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"bowsernet/internal/config"
	"bowsernet/internal/metrics"
	"bowsernet/internal/weburl"
)

// Key identifies an origin.
type Key struct {
	Host string
	Port uint16
	TLS  bool
}

// KeyFor derives the origin key of u.
func KeyFor(u weburl.HTTP) Key {
	return Key{Host: u.Host, Port: u.Port, TLS: u.TLS}
}

// Addr returns host:port for dialing.
func (k Key) Addr() string {
	return net.JoinHostPort(k.hostname(), strconv.Itoa(int(k.Port)))
}

// hostname strips the brackets from an IPv6 literal.
func (k Key) hostname() string {
	return strings.TrimSuffix(strings.TrimPrefix(k.Host, "["), "]")
}

func (k Key) String() string {
	if k.TLS {
		return "https://" + k.Addr()
	}
	return "http://" + k.Addr()
}

// Stream is a duplex byte stream. Plain TCP and TLS connections both satisfy it.
type Stream interface {
	io.ReadWriteCloser
}

// Dialer opens a new stream to the origin named by key.
type Dialer func(ctx context.Context, key Key) (Stream, error)

// ConnectError reports a failed TCP connect or TLS handshake.
type ConnectError struct {
	Key Key
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Key, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Conn is a pooled stream with its read and write buffers.
type Conn struct {
	*bufio.ReadWriter
	key    Key
	stream Stream
}

func newConn(key Key, s Stream) *Conn {
	return &Conn{
		ReadWriter: bufio.NewReadWriter(bufio.NewReader(s), bufio.NewWriter(s)),
		key:        key,
		stream:     s,
	}
}

// Key returns the origin this connection is bound to.
func (c *Conn) Key() Key {
	return c.key
}

// SetDeadline bounds the next reads and writes when the underlying stream
// supports deadlines. The zero time clears it.
func (c *Conn) SetDeadline(t time.Time) error {
	if d, ok := c.stream.(interface{ SetDeadline(time.Time) error }); ok {
		return d.SetDeadline(t)
	}
	return nil
}

// Pool owns one open stream per origin. It never health-checks a pooled
// stream; a peer that went away surfaces as an error on the next use.
// A Pool is not safe for concurrent use.
type Pool struct {
	conns   map[Key]*Conn
	dial    Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Pool that dials real TCP and TLS connections. TLS
// certificates are verified against the platform trust store.
// The metrics parameter is optional; pass nil to disable pool metrics.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Pool {
	return NewWithDialer(netDialer(cfg.Network.DialTimeout()), logger, m)
}

// NewWithDialer creates a Pool that opens streams with dial.
func NewWithDialer(dial Dialer, logger *slog.Logger, m *metrics.Metrics) *Pool {
	return &Pool{
		conns:   make(map[Key]*Conn),
		dial:    dial,
		logger:  logger.With("component", "connection_pool"),
		metrics: m,
	}
}

// Get returns the pooled connection for u's origin, dialing one if none exists.
func (p *Pool) Get(ctx context.Context, u weburl.HTTP) (*Conn, error) {
	key := KeyFor(u)
	if c, ok := p.conns[key]; ok {
		return c, nil
	}

	p.logger.Info("connecting",
		"origin", key.String(),
		"total_connections", len(p.conns)+1,
	)

	s, err := p.dial(ctx, key)
	if err != nil {
		var ce *ConnectError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &ConnectError{Key: key, Err: err}
	}

	if p.metrics != nil {
		p.metrics.ConnectionsOpened.WithLabelValues(strconv.FormatBool(key.TLS)).Inc()
	}
	return p.put(key, s), nil
}

// Put installs s as the connection for u's origin, replacing and closing any
// existing one.
func (p *Pool) Put(u weburl.HTTP, s Stream) *Conn {
	key := KeyFor(u)
	if old, ok := p.conns[key]; ok {
		p.Discard(old)
	}
	return p.put(key, s)
}

func (p *Pool) put(key Key, s Stream) *Conn {
	c := newConn(key, s)
	p.conns[key] = c
	p.updateGauge()
	return c
}

// Discard closes c and removes it from the pool if it is still pooled.
func (p *Pool) Discard(c *Conn) {
	if cur, ok := p.conns[c.key]; ok && cur == c {
		delete(p.conns, c.key)
		p.updateGauge()
	}
	if err := c.stream.Close(); err != nil {
		p.logger.Debug("close discarded connection", "origin", c.key.String(), "err", err)
	}
}

// Len returns the number of pooled connections.
func (p *Pool) Len() int {
	return len(p.conns)
}

// Close closes every pooled connection and empties the pool.
func (p *Pool) Close() error {
	var errs []error
	for key, c := range p.conns {
		if err := c.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		delete(p.conns, key)
	}
	p.updateGauge()
	return errors.Join(errs...)
}

func (p *Pool) updateGauge() {
	if p.metrics != nil {
		p.metrics.OpenConnections.Set(float64(len(p.conns)))
	}
}

func netDialer(timeout time.Duration) Dialer {
	d := &net.Dialer{Timeout: timeout}
	return func(ctx context.Context, key Key) (Stream, error) {
		conn, err := d.DialContext(ctx, "tcp", key.Addr())
		if err != nil {
			return nil, err
		}
		if !key.TLS {
			return conn, nil
		}

		tc := tls.Client(conn, &tls.Config{
			ServerName: key.hostname(),
			MinVersion: tls.VersionTLS12,
		})
		if err := tc.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("tls handshake: %w", err)
		}
		return tc, nil
	}
}
