// Package shutterrpc is the Enclosure Controller's RPC surface to the
// external shutter/roof daemon. The controller never touches hardware
// directly (spec.md §1); every open/close/heartbeat action goes through
// here.
package shutterrpc

import (
	"fmt"

	"github.com/obscore/supervisor/internal/rpcsock"
	"github.com/rs/zerolog"
)

// Status mirrors spec.md §3 EnclosureStatus hardware telemetry.
type Status string

const (
	StatusClosed  Status = "closed"
	StatusOpen    Status = "open"
	StatusMoving  Status = "moving"
	StatusTimeout Status = "timeout"
)

// Client talks to the shutter daemon over a Unix socket using msgpack-rpc.
type Client struct {
	rpc *rpcsock.Client
	log zerolog.Logger
}

// New dials (lazily) the shutter daemon's socket.
func New(socketPath string, log zerolog.Logger) (*Client, error) {
	rpc, err := rpcsock.New(socketPath, log)
	return &Client{
		rpc: rpc,
		log: log.With().Str("component", "shutterrpc").Logger(),
	}, err
}

// Disconnect releases the underlying socket connection.
func (c *Client) Disconnect() error { return c.rpc.Close() }

// Status queries current hardware telemetry.
func (c *Client) Status() (Status, error) {
	result, err := c.rpc.Call("status")
	if err != nil {
		return "", fmt.Errorf("shutterrpc: status: %w", err)
	}
	s, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("shutterrpc: status: unexpected result type %T", result)
	}
	return Status(s), nil
}

// Open issues the open command. It does not block until the shutter
// finishes moving; callers poll Status.
func (c *Client) Open() error {
	_, err := c.rpc.Call("open")
	if err != nil {
		return fmt.Errorf("shutterrpc: open: %w", err)
	}
	return nil
}

// Close issues the close command.
func (c *Client) Close() error {
	_, err := c.rpc.Call("close")
	if err != nil {
		return fmt.Errorf("shutterrpc: close: %w", err)
	}
	return nil
}

// ArmHeartbeat commits the daemon to watchdog-supervised automatic
// operation: the daemon will close the shutter if Ping isn't called within
// its configured horizon.
func (c *Client) ArmHeartbeat() error {
	_, err := c.rpc.Call("armHeartbeat")
	if err != nil {
		return fmt.Errorf("shutterrpc: arm heartbeat: %w", err)
	}
	return nil
}

// DisarmHeartbeat releases the watchdog; the daemon stops enforcing
// liveness and manual control resumes.
func (c *Client) DisarmHeartbeat() error {
	_, err := c.rpc.Call("disarmHeartbeat")
	if err != nil {
		return fmt.Errorf("shutterrpc: disarm heartbeat: %w", err)
	}
	return nil
}

// Ping resets the watchdog timer. Must only be called when the Enclosure
// Controller has confirmed the environment verdict is fresh (spec.md §8 P1).
func (c *Client) Ping() error {
	return c.rpc.Notify("ping")
}
