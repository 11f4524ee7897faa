package dispatch

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   []any
	fail   bool
	closed bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.sent = append(c.sent, v)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestSendFansOutAndDropsBroken(t *testing.T) {
	r := NewWSRegistry(nil)
	good, bad := &fakeConn{}, &fakeConn{fail: true}
	r.Add("booking:b1", good)
	r.Add("booking:b1", bad)

	if err := r.Send("booking:b1", "tick"); err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if len(good.sent) != 1 || !bad.closed {
		t.Fatalf("good sent=%d bad closed=%v", len(good.sent), bad.closed)
	}
	if n := r.Count("booking:b1"); n != 1 {
		t.Fatalf("expected 1 session left, got %d", n)
	}
	if err := r.Send("booking:nobody", "tick"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := NewWSRegistry(nil)
	c := &fakeConn{}
	s := r.Add("driver:1", c)
	r.Remove("driver:1", s)
	r.Remove("driver:1", s)
	if r.Count("driver:1") != 0 || !c.closed {
		t.Fatalf("session not removed")
	}
}

func TestPushFallsBackToWebhook(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ws := NewWSRegistry(nil)
	p := NewPushDispatcher(srv.URL, ws, nil)
	if err := p.Send("driver:2", map[string]string{"cargo_id": "c1"}); err != nil {
		t.Fatal(err)
	}
	if got["key"] != "driver:2" {
		t.Fatalf("unexpected webhook body %v", got)
	}

	c := &fakeConn{}
	ws.Add("driver:3", c)
	got = nil
	if err := p.Send("driver:3", "hello"); err != nil {
		t.Fatal(err)
	}
	if len(c.sent) != 1 || got != nil {
		t.Fatalf("expected websocket delivery only")
	}
}

func TestPushWithoutEndpoint(t *testing.T) {
	p := NewPushDispatcher("", NewWSRegistry(nil), nil)
	if err := p.Send("driver:9", "x"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}
