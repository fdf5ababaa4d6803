package rpcsock

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// msgpack-rpc message types (https://github.com/msgpack-rpc/msgpack-rpc/blob/master/spec.md).
const (
	msgTypeRequest      = 0
	msgTypeResponse     = 1
	msgTypeNotification = 2
)

// Error represents an error returned by the remote daemon.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpcsock: remote error %d: %s", e.Code, e.Message)
}

// Call sends an RPC request and blocks for its response.
func (c *Client) Call(method string, params ...interface{}) (interface{}, error) {
	conn, err := c.getConn()
	if err != nil {
		return nil, fmt.Errorf("rpcsock: call %s: %w", method, err)
	}

	msgID := c.nextMsgID()
	request := []interface{}{msgTypeRequest, msgID, method, params}

	if err := c.sendMessage(conn, request); err != nil {
		c.markDisconnected()
		return nil, fmt.Errorf("rpcsock: send %s: %w", method, err)
	}

	response, err := c.readResponse(conn)
	if err != nil {
		c.markDisconnected()
		return nil, fmt.Errorf("rpcsock: read response for %s: %w", method, err)
	}

	if len(response) < 4 {
		c.markDisconnected()
		return nil, fmt.Errorf("rpcsock: malformed response for %s: %d elements", method, len(response))
	}

	respType, ok := toInt(response[0])
	if !ok || respType != msgTypeResponse {
		c.markDisconnected()
		return nil, fmt.Errorf("rpcsock: unexpected response type for %s: %v", method, response[0])
	}

	// A Unix socket is a single ordered byte stream, so a reply that
	// doesn't echo the msgid we just sent means a prior call's read
	// timed out and its response arrived late, desynchronizing every
	// read after it. Since these connections drive a physical dome
	// shutter, trusting a desynced reply risks acting on a stale
	// command's result (e.g. an "open" response arriving as if it were
	// this call's "status"), so the connection is torn down rather than
	// reused.
	if respMsgID, ok := toInt(response[1]); !ok || respMsgID != msgID {
		c.markDisconnected()
		return nil, fmt.Errorf("rpcsock: response id mismatch for %s: sent %d, got %v, connection desynced", method, msgID, response[1])
	}

	if response[2] != nil {
		if errData, ok := response[2].([]interface{}); ok && len(errData) >= 2 {
			code, _ := toInt(errData[0])
			msg, _ := errData[1].(string)
			return nil, &Error{Code: code, Message: msg}
		}
		return nil, fmt.Errorf("rpcsock: remote error for %s: %v", method, response[2])
	}

	return response[3], nil
}

// Notify sends a one-way RPC message with no response expected.
func (c *Client) Notify(method string, params ...interface{}) error {
	conn, err := c.getConn()
	if err != nil {
		return fmt.Errorf("rpcsock: notify %s: %w", method, err)
	}

	notification := []interface{}{msgTypeNotification, method, params}
	if err := c.sendMessage(conn, notification); err != nil {
		c.markDisconnected()
		return fmt.Errorf("rpcsock: send notify %s: %w", method, err)
	}
	return nil
}

func (c *Client) sendMessage(conn io.Writer, msg interface{}) error {
	_, writeTimeout := c.timeouts()
	if nc, ok := conn.(net.Conn); ok {
		nc.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
	return msgpack.NewEncoder(conn).Encode(msg)
}

func (c *Client) readResponse(conn io.Reader) ([]interface{}, error) {
	readTimeout, _ := c.timeouts()
	if nc, ok := conn.(net.Conn); ok {
		nc.SetReadDeadline(time.Now().Add(readTimeout))
	}

	var response []interface{}
	if err := msgpack.NewDecoder(conn).Decode(&response); err != nil {
		return nil, err
	}
	return response, nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
