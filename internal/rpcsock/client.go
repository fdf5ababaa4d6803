// Package rpcsock provides a small msgpack-rpc client over a Unix domain
// socket, the common substrate both the shutter daemon client
// (internal/shutterrpc) and the environment aggregator client
// (internal/weatherrpc) are built on. Every device RPC in this supervisor
// goes through one of those two packages; nothing else dials a socket
// directly (spec.md §1: "no direct hardware I/O").
package rpcsock

import (
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultReadTimeout bounds how long a Call waits for a response.
	DefaultReadTimeout = 5 * time.Second
	// DefaultWriteTimeout bounds how long a Call/Notify waits to send.
	DefaultWriteTimeout = 5 * time.Second
)

var (
	// ErrNotConnected is returned when a call is attempted with no live
	// connection and reconnection fails.
	ErrNotConnected = errors.New("rpcsock: not connected")
	// ErrSocketNotFound is returned when the socket file doesn't exist.
	ErrSocketNotFound = errors.New("rpcsock: socket not found")
)

// Client manages a lazily-(re)connected Unix socket to an RPC daemon.
type Client struct {
	socketPath   string
	readTimeout  time.Duration
	writeTimeout time.Duration

	mu          sync.Mutex
	conn        net.Conn
	msgID       uint32
	isConnected bool

	log zerolog.Logger
}

// New creates a client for the daemon listening on socketPath. It does not
// fail if the socket is absent yet or the daemon isn't up: the first Call
// or Notify will attempt to connect, and every subsequent one retries on
// failure. Returns ErrSocketNotFound only so callers can log a clearer
// startup message; the client is still usable and will reconnect once the
// socket appears.
func New(socketPath string, log zerolog.Logger) (*Client, error) {
	c := &Client{
		socketPath:   socketPath,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		log:          log.With().Str("component", "rpcsock").Str("socket", socketPath).Logger(),
	}

	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		c.log.Warn().Msg("socket not present yet, will connect lazily")
		return c, ErrSocketNotFound
	}

	if err := c.connect(); err != nil {
		c.log.Warn().Err(err).Msg("initial connection failed, will retry on first call")
	}
	return c, nil
}

// SetTimeouts overrides the default read/write deadlines.
func (c *Client) SetTimeouts(read, write time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTimeout = read
	c.writeTimeout = write
}

// IsConnected reports whether the underlying socket connection is live.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.isConnected = false
	return err
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.isConnected = false
	}

	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return err
	}

	c.conn = conn
	c.isConnected = true
	return nil
}

// getConn returns a live connection, reconnecting if necessary. Caller must
// not hold c.mu.
func (c *Client) getConn() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.isConnected {
		return c.conn, nil
	}
	if err := c.connectLocked(); err != nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

func (c *Client) nextMsgID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgID++
	return c.msgID
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) timeouts() (time.Duration, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readTimeout, c.writeTimeout
}
