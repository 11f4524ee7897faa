package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Mutombe/cargo-space/internal/observability"
)

var ErrNoSession = errors.New("no ws session")

const writeWait = 5 * time.Second

// Conn is the part of *websocket.Conn the registry writes to.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// WSSession is one connected client.
type WSSession struct {
	conn Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// WSRegistry holds sessions by key. A key is a driver ("driver:<id>") or a
// tracked booking ("booking:<id>") and may have several sessions.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[*WSSession]struct{}
	log      *zap.Logger
}

func NewWSRegistry(log *zap.Logger) *WSRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSRegistry{sessions: make(map[string]map[*WSSession]struct{}), log: log}
}

func (r *WSRegistry) Add(key string, conn Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[key]
	if !ok {
		set = make(map[*WSSession]struct{})
		r.sessions[key] = set
	}
	set[s] = struct{}{}
	observability.WSSessions.Inc()
	return s
}

// Remove drops s and closes its connection. Removing twice is a no-op.
func (r *WSRegistry) Remove(key string, s *WSSession) {
	r.mu.Lock()
	set := r.sessions[key]
	_, ok := set[s]
	if ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.sessions, key)
		}
	}
	r.mu.Unlock()
	if ok {
		observability.WSSessions.Dec()
		_ = s.conn.Close()
	}
}

// Send writes v to every session under key. Sessions that fail are dropped.
func (r *WSRegistry) Send(key string, v any) error {
	r.mu.RLock()
	targets := make([]*WSSession, 0, len(r.sessions[key]))
	for s := range r.sessions[key] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()
	if len(targets) == 0 {
		return ErrNoSession
	}
	var errs []error
	for _, s := range targets {
		if err := s.Send(v); err != nil {
			r.log.Warn("ws send failed", zap.String("key", key), zap.Error(err))
			r.Remove(key, s)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(targets) {
		return errors.Join(errs...)
	}
	return nil
}

func (r *WSRegistry) Count(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[key])
}

// CloseAll drops every session. Called on shutdown.
func (r *WSRegistry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]map[*WSSession]struct{})
	r.mu.Unlock()
	for _, set := range all {
		for s := range set {
			observability.WSSessions.Dec()
			_ = s.conn.Close()
		}
	}
}
