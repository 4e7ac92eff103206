package widget

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestConnectionManager_Register(t *testing.T) {
	cm := NewConnectionManager()
	conn := &websocket.Conn{}

	cm.Register(testVisitor, testTab, conn)

	if active := cm.GetActive(testVisitor, testTab); active != conn {
		t.Errorf("Expected connection %v, got %v", conn, active)
	}
	if cm.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", cm.Count())
	}
}

func TestConnectionManager_Unregister(t *testing.T) {
	cm := NewConnectionManager()
	conn := &websocket.Conn{}

	cm.Register(testVisitor, testTab, conn)
	cm.Unregister(testVisitor, testTab, conn)

	if active := cm.GetActive(testVisitor, testTab); active != nil {
		t.Errorf("Expected nil connection, got %v", active)
	}
	if cm.Count() != 0 {
		t.Errorf("Expected no connections, got %d", cm.Count())
	}
}

func TestConnectionManager_UnregisterStale(t *testing.T) {
	cm := NewConnectionManager()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	cm.Register(testVisitor, "tab-1", conn1)

	// Another tab should remain active when stale unregister happens.
	cm.Register(testVisitor, "tab-2", conn2)

	cm.Unregister(testVisitor, "tab-1", conn1)
	cm.Unregister(testVisitor, "tab-2", &websocket.Conn{})

	if active := cm.GetActive(testVisitor, "tab-2"); active != conn2 {
		t.Errorf("Expected connection %v, got %v", conn2, active)
	}
}

func TestConnectionManager_ConcurrentAccess(t *testing.T) {
	cm := NewConnectionManager()
	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		for i := 0; i < 1000; i++ {
			cm.Register(testVisitor, "tab-"+strconv.Itoa(i), &websocket.Conn{})
		}
	}()

	go func() {
		defer func() { done <- struct{}{} }()
		for i := 0; i < 1000; i++ {
			cm.GetActive(testVisitor, "tab-"+strconv.Itoa(i))
		}
	}()

	<-done
	<-done
	if cm.Count() != 1000 {
		t.Errorf("Expected 1000 connections, got %d", cm.Count())
	}
}

// acceptedPair returns the server side of a live socket and a channel that
// reports when the client side observes the close.
func acceptedPair(t *testing.T) (*websocket.Conn, <-chan error) {
	t.Helper()
	serverConn := make(chan *websocket.Conn, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		serverConn <- ws
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	closed := make(chan error, 1)
	go func() {
		_, _, err := client.Read(context.Background())
		closed <- err
	}()

	select {
	case ws := <-serverConn:
		return ws, closed
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted the socket")
		return nil, nil
	}
}

func TestConnectionManager_CloseKey(t *testing.T) {
	cm := NewConnectionManager()
	ws, closed := acceptedPair(t)
	cm.Register(testVisitor, testTab, ws)

	cm.CloseKey(testVisitor + ":" + testTab)

	select {
	case err := <-closed:
		if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			t.Errorf("Expected normal closure, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("client never saw the close")
	}
	if cm.GetActive(testVisitor, testTab) != nil {
		t.Error("Expected tab to be removed")
	}
}

func TestConnectionManager_CloseVisitor(t *testing.T) {
	cm := NewConnectionManager()
	ws1, closed1 := acceptedPair(t)
	ws2, closed2 := acceptedPair(t)
	cm.Register(testVisitor, "tab-1", ws1)
	cm.Register(testVisitor, "tab-2", ws2)

	cm.CloseVisitor(testVisitor)

	for _, closed := range []<-chan error{closed1, closed2} {
		select {
		case <-closed:
		case <-time.After(5 * time.Second):
			t.Fatal("client never saw the close")
		}
	}
	if cm.Count() != 0 {
		t.Errorf("Expected no connections, got %d", cm.Count())
	}
}
