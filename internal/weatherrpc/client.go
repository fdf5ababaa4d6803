// Package weatherrpc is the Environment Monitor's RPC surface to the
// external environment aggregator daemon: weather/power/network sensor
// readings, indexed by device.
package weatherrpc

import (
	"fmt"

	"github.com/obscore/supervisor/internal/rpcsock"
	"github.com/rs/zerolog"
)

// Reading is one device/parameter sample from the aggregator.
type Reading struct {
	Device    string
	Parameter string
	Value     float64
	Stale     bool
}

// Client talks to the environment aggregator over a Unix socket.
type Client struct {
	rpc *rpcsock.Client
	log zerolog.Logger
}

// New dials (lazily) the environment aggregator's socket.
func New(socketPath string, log zerolog.Logger) (*Client, error) {
	rpc, err := rpcsock.New(socketPath, log)
	return &Client{
		rpc: rpc,
		log: log.With().Str("component", "weatherrpc").Logger(),
	}, err
}

// Disconnect releases the underlying socket connection.
func (c *Client) Disconnect() error { return c.rpc.Close() }

// Snapshot fetches the current device-indexed reading set. The map key is
// "<device>.<parameter>".
func (c *Client) Snapshot() (map[string]Reading, error) {
	result, err := c.rpc.Call("snapshot")
	if err != nil {
		return nil, fmt.Errorf("weatherrpc: snapshot: %w", err)
	}

	raw, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("weatherrpc: snapshot: unexpected result type %T", result)
	}

	readings := make(map[string]Reading, len(raw))
	for key, v := range raw {
		entry, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		device, _ := entry["device"].(string)
		parameter, _ := entry["parameter"].(string)
		value := toFloat(entry["value"])
		stale, _ := entry["stale"].(bool)

		readings[key] = Reading{
			Device:    device,
			Parameter: parameter,
			Value:     value,
			Stale:     stale,
		}
	}
	return readings, nil
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
