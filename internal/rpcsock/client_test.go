package rpcsock

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// startEchoServer listens on a Unix socket and, for every request, replies
// with a canned result (or error) for the given method.
func startEchoServer(t *testing.T, results map[string]interface{}, errs map[string]*Error) string {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				dec := msgpack.NewDecoder(conn)
				for {
					var req []interface{}
					if err := dec.Decode(&req); err != nil {
						return
					}
					if len(req) < 3 {
						continue
					}
					msgID := req[1]
					method, _ := req[2].(string)

					var errField interface{}
					var result interface{}
					if e, ok := errs[method]; ok {
						errField = []interface{}{e.Code, e.Message}
					} else {
						result = results[method]
					}

					resp := []interface{}{msgTypeResponse, msgID, errField, result}
					enc := msgpack.NewEncoder(conn)
					if err := enc.Encode(resp); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	t.Cleanup(func() { ln.Close() })
	return sockPath
}

func TestClient_CallSuccess(t *testing.T) {
	sockPath := startEchoServer(t, map[string]interface{}{"ping": "pong"}, nil)

	c, err := New(sockPath, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	result, err := c.Call("ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", result)
}

func TestClient_CallRemoteError(t *testing.T) {
	sockPath := startEchoServer(t, nil, map[string]*Error{"fail": {Code: 7, Message: "boom"}})

	c, err := New(sockPath, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Call("fail")
	require.Error(t, err)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 7, rpcErr.Code)
	assert.Equal(t, "boom", rpcErr.Message)
}

func TestClient_CallDetectsMsgIDMismatch(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "desync.sock")

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
		// Reply with a msgid that doesn't match the request, simulating a
		// stale response from a previous, timed-out call arriving late.
		sent, _ := toInt(req[1])
		resp := []interface{}{msgTypeResponse, sent + 100, nil, "status"}
		msgpack.NewEncoder(conn).Encode(resp)
	}()

	c, err := New(sockPath, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Call("status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "desynced")
	assert.False(t, c.IsConnected(), "a desynced connection must be torn down, not reused")
}

func TestClient_SocketNotFoundIsLazy(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.sock")

	c, err := New(missing, zerolog.Nop())
	require.ErrorIs(t, err, ErrSocketNotFound)
	require.NotNil(t, c)
	assert.False(t, c.IsConnected())

	_, callErr := c.Call("anything")
	assert.Error(t, callErr)
}

func TestClient_ReconnectsAfterDaemonRestart(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "restart.sock")

	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)

	serve := func(ln net.Listener) {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var req []interface{}
		if err := msgpack.NewDecoder(conn).Decode(&req); err != nil {
			return
		}
		resp := []interface{}{msgTypeResponse, req[1], nil, "ok"}
		msgpack.NewEncoder(conn).Encode(resp)
	}
	go serve(ln)

	c, err := New(sockPath, zerolog.Nop())
	require.NoError(t, err)

	result, err := c.Call("probe")
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	// Simulate the daemon dropping the connection and restarting on the
	// same socket path.
	ln.Close()
	c.markDisconnected()
	os.Remove(sockPath)

	ln2, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln2.Close()
	go serve(ln2)

	// Give the new listener a moment to be ready to accept.
	time.Sleep(10 * time.Millisecond)

	result, err = c.Call("probe")
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}
