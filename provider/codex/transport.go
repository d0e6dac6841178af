package codex

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/pslog"
)

// ServerRequest is a message initiated by the server: a request when ID
// is set, a notification when it is nil.
type ServerRequest struct {
	ID     *int64
	Method string
	Params json.RawMessage
}

// Transport is the wire half of the codex adapter. It is satisfied by
// SocketTransport in production and by fakes in tests.
type Transport interface {
	// Call performs one request/response round trip. A non-nil result
	// is decoded from the response.
	Call(ctx context.Context, method string, params, result any) error
	// Respond answers a server-initiated request.
	Respond(ctx context.Context, id int64, result any) error
	// Requests delivers server-initiated requests and notifications.
	// The channel is never closed while the transport runs.
	Requests() <-chan ServerRequest
	Connected() bool
	LastError() string
	Close() error
}

// RPCError is an error object returned by the server.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// ErrNotConnected is returned by Call and Respond while the socket is
// down.
var ErrNotConnected = errors.New("codex transport not connected")

const (
	maxLineBytes     = 8 * 1024 * 1024
	requestQueueSize = 64
	redialMin        = 250 * time.Millisecond
	redialMax        = 10 * time.Second
)

// SocketTransport speaks JSON lines over a local stream socket. Run
// owns the connection and redials with backoff until its context ends.
type SocketTransport struct {
	network string
	addr    string
	log     pslog.Logger

	nextID   atomic.Int64
	requests chan ServerRequest
	dropped  atomic.Int64

	mu        sync.Mutex
	conn      net.Conn
	pending   map[int64]chan wireMessage
	connected bool
	lastErr   string
	closed    bool
}

// NewSocketTransport prepares a transport for the given socket path. No
// connection is made until Run is called.
func NewSocketTransport(path string, log pslog.Logger) *SocketTransport {
	return &SocketTransport{
		network:  "unix",
		addr:     path,
		log:      log,
		requests: make(chan ServerRequest, requestQueueSize),
		pending:  make(map[int64]chan wireMessage),
	}
}

// Run dials the socket and services it until ctx is done, redialing
// with capped backoff after every disconnect. onState is called after
// each connect and disconnect; it may be nil.
func (t *SocketTransport) Run(ctx context.Context, onState func()) {
	delay := redialMin
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := (&net.Dialer{}).DialContext(ctx, t.network, t.addr)
		if err != nil {
			t.setDown(err)
			if onState != nil {
				onState()
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > redialMax {
				delay = redialMax
			}
			continue
		}
		delay = redialMin
		t.setUp(conn)
		if onState != nil {
			onState()
		}
		t.log.Info("codex transport connected", "addr", t.addr)
		err = t.readLoop(ctx, conn)
		t.setDown(err)
		if onState != nil {
			onState()
		}
		if ctx.Err() != nil {
			return
		}
		t.log.Warn("codex transport disconnected", "addr", t.addr, "err", err)
	}
}

func (t *SocketTransport) setUp(conn net.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.lastErr = ""
	t.mu.Unlock()
}

func (t *SocketTransport) setDown(err error) {
	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.connected = false
	if err != nil && !errors.Is(err, context.Canceled) {
		t.lastErr = err.Error()
	}
	for id, ch := range t.pending {
		delete(t.pending, id)
		close(ch)
	}
	t.mu.Unlock()
}

func (t *SocketTransport) readLoop(ctx context.Context, conn net.Conn) error {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg wireMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			t.log.Warn("codex transport decode failed", "len", len(line), "err", err)
			continue
		}
		switch {
		case msg.Method != "":
			req := ServerRequest{ID: msg.ID, Method: msg.Method, Params: msg.Params}
			select {
			case t.requests <- req:
			default:
				n := t.dropped.Add(1)
				t.log.Warn("codex transport request queue full", "method", msg.Method, "dropped", n)
			}
		case msg.ID != nil:
			t.mu.Lock()
			ch, ok := t.pending[*msg.ID]
			if ok {
				delete(t.pending, *msg.ID)
			}
			t.mu.Unlock()
			if ok {
				ch <- msg
			}
		default:
			t.log.Warn("codex transport stray message", "len", len(line))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("connection closed")
}

// Call implements Transport.
func (t *SocketTransport) Call(ctx context.Context, method string, params, result any) error {
	id := t.nextID.Add(1)
	ch := make(chan wireMessage, 1)

	req := wireRequest{JSONRPC: "2.0", ID: &id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s params: %w", method, err)
		}
		req.Params = raw
	}

	t.mu.Lock()
	if !t.connected || t.conn == nil {
		t.mu.Unlock()
		return ErrNotConnected
	}
	t.pending[id] = ch
	err := t.writeLocked(req)
	t.mu.Unlock()
	if err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return ctx.Err()
	case msg, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		if msg.Error != nil {
			return msg.Error
		}
		if result != nil {
			if err := json.Unmarshal(msg.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

// Respond implements Transport.
func (t *SocketTransport) Respond(_ context.Context, id int64, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal response %d: %w", id, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.conn == nil {
		return ErrNotConnected
	}
	return t.writeLocked(wireRequest{JSONRPC: "2.0", ID: &id, Result: raw})
}

func (t *SocketTransport) writeLocked(req wireRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = t.conn.Write(data)
	return err
}

// Requests implements Transport.
func (t *SocketTransport) Requests() <-chan ServerRequest { return t.requests }

// Connected implements Transport.
func (t *SocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// LastError implements Transport.
func (t *SocketTransport) LastError() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Close implements Transport.
func (t *SocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		t.connected = false
		return err
	}
	return nil
}
