package codex

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func TestSocketTransportRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "codex.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	serverErr := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer conn.Close()
		// Push a notification before answering anything.
		if _, err := conn.Write([]byte(`{"jsonrpc":"2.0","method":"conversationUpdated","params":{"conversationId":"c1"}}` + "\n")); err != nil {
			serverErr <- err
			return
		}
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var req wireMessage
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				serverErr <- err
				return
			}
			resp := wireMessage{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"models":[{"id":"m1"}]}`)}
			data, _ := json.Marshal(resp)
			if _, err := conn.Write(append(data, '\n')); err != nil {
				serverErr <- err
				return
			}
		}
		serverErr <- scanner.Err()
	}()

	transport := NewSocketTransport(socketPath, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go transport.Run(ctx, nil)

	deadline := time.Now().Add(2 * time.Second)
	for !transport.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("transport never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case req := <-transport.Requests():
		if req.Method != notifyConversationUpdated {
			t.Fatalf("method = %q", req.Method)
		}
		if req.ID != nil {
			t.Fatal("notification carried an id")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}

	callCtx, callCancel := context.WithTimeout(ctx, 2*time.Second)
	defer callCancel()
	var res listModelsResult
	if err := transport.Call(callCtx, methodListModels, struct{}{}, &res); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(res.Models) != 1 || res.Models[0].ID != "m1" {
		t.Fatalf("result: %+v", res)
	}

	if err := transport.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSocketTransportCallWhileDown(t *testing.T) {
	transport := NewSocketTransport(filepath.Join(t.TempDir(), "missing.sock"), testLogger())
	err := transport.Call(context.Background(), methodListModels, struct{}{}, nil)
	if err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}
