package weatherrpc

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func startFakeAggregator(t *testing.T) string {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "weather.sock")

	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var req []interface{}
		if err := msgpack.NewDecoder(conn).Decode(&req); err != nil {
			return
		}
		result := map[string]interface{}{
			"weather.internal_humidity": map[string]interface{}{
				"device":    "weather",
				"parameter": "internal_humidity",
				"value":     42.5,
				"stale":     false,
			},
			"weather.rain": map[string]interface{}{
				"device":    "weather",
				"parameter": "rain",
				"value":     0.0,
				"stale":     true,
			},
		}
		resp := []interface{}{1, req[1], nil, result}
		msgpack.NewEncoder(conn).Encode(resp)
	}()

	return sockPath
}

func TestClient_Snapshot(t *testing.T) {
	sockPath := startFakeAggregator(t)

	c, err := New(sockPath, zerolog.Nop())
	require.NoError(t, err)
	defer c.Disconnect()

	readings, err := c.Snapshot()
	require.NoError(t, err)
	require.Len(t, readings, 2)

	humidity := readings["weather.internal_humidity"]
	assert.Equal(t, "weather", humidity.Device)
	assert.Equal(t, "internal_humidity", humidity.Parameter)
	assert.Equal(t, 42.5, humidity.Value)
	assert.False(t, humidity.Stale)

	rain := readings["weather.rain"]
	assert.True(t, rain.Stale)
}
