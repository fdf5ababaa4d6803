package shutterrpc

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func startFakeShutterDaemon(t *testing.T, status string) string {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "shutter.sock")

	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		dec := msgpack.NewDecoder(conn)
		enc := msgpack.NewEncoder(conn)
		for {
			var req []interface{}
			if err := dec.Decode(&req); err != nil {
				return
			}
			method, _ := req[2].(string)
			var result interface{}
			switch method {
			case "status":
				result = status
			case "open", "close", "armHeartbeat", "disarmHeartbeat":
				result = "ok"
			}
			if len(req) >= 2 && req[0] == 0 {
				// request, expects a response
				enc.Encode([]interface{}{1, req[1], nil, result})
			}
		}
	}()

	return sockPath
}

func TestClient_Status(t *testing.T) {
	sockPath := startFakeShutterDaemon(t, "open")

	c, err := New(sockPath, zerolog.Nop())
	require.NoError(t, err)
	defer c.Disconnect()

	status, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, status)
}

func TestClient_OpenCloseHeartbeat(t *testing.T) {
	sockPath := startFakeShutterDaemon(t, "closed")

	c, err := New(sockPath, zerolog.Nop())
	require.NoError(t, err)
	defer c.Disconnect()

	require.NoError(t, c.Open())
	require.NoError(t, c.Close())
	require.NoError(t, c.ArmHeartbeat())
	require.NoError(t, c.DisarmHeartbeat())
	require.NoError(t, c.Ping())
}
