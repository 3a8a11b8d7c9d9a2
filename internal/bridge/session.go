// ABOUTME: Session state for one gateway connection and request correlation.
// ABOUTME: Owns the send half, the request counter, and one-shot completion slots.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Correlation errors. Callers can tell a local timeout apart from a
// connection torn down mid-wait.
var (
	ErrNotConnected   = errors.New("node not connected")
	ErrRequestTimeout = errors.New("node request timed out")
	ErrConnectionLost = errors.New("connection lost while awaiting node response")
)

// Session is the live state of one connection attempt: the transport's send
// half, a monotonically increasing request counter, and the correlation
// table. Exactly one Session exists per attempt; it is replaced wholesale on
// reconnect. Request ids are unique for the lifetime of one Session only.
type Session struct {
	transport Transport
	nodeID    string

	mu      sync.Mutex
	counter uint64
	pending map[string]chan Frame
	closed  bool

	// challenge holds the most recent unconsumed nonce from the reader.
	challenge chan string

	// hello is the connect response payload, captured for future protocol
	// evolution but not currently interpreted.
	hello []byte
}

func newSession(t Transport, nodeID string) *Session {
	return &Session{
		transport: t,
		nodeID:    nodeID,
		pending:   make(map[string]chan Frame),
		challenge: make(chan string, 1),
	}
}

// send allocates the next request id and transmits a req frame. When await
// is set, a one-shot completion slot is registered first; the caller must
// either receive on it or unregister the id. The session lock is held across
// the transport write so the counter, the table, and the send stay coherent,
// but never across an await of the reply.
func (s *Session) send(ctx context.Context, method string, params any, await bool) (string, chan Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", nil, ErrNotConnected
	}

	s.counter++
	id := fmt.Sprintf("n%d", s.counter)

	var ch chan Frame
	if await {
		ch = make(chan Frame, 1)
		s.pending[id] = ch
	}

	frame := Frame{Type: frameTypeRequest, ID: id, Method: method, Params: params}
	if err := s.transport.WriteJSON(ctx, frame); err != nil {
		delete(s.pending, id)
		return "", nil, fmt.Errorf("sending %s request: %w", method, err)
	}
	return id, ch, nil
}

// unregister drops the completion slot for id, if still present.
func (s *Session) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// resolve delivers a response frame to its waiting caller. Responses for
// unknown ids are dropped.
func (s *Session) resolve(id string, f Frame) {
	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	// Slot channels are buffered and receive exactly one frame.
	select {
	case ch <- f:
	default:
	}
}

// offerChallenge records a nonce from the reader, replacing any unconsumed
// previous one. Only the reader goroutine calls this.
func (s *Session) offerChallenge(nonce string) {
	select {
	case <-s.challenge:
	default:
	}
	s.challenge <- nonce
}

// awaitChallenge waits up to wait for a nonce, returning "" if none arrives.
// The gateway is allowed to issue no challenge at all.
func (s *Session) awaitChallenge(ctx context.Context, wait time.Duration) string {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case nonce := <-s.challenge:
		return nonce
	case <-timer.C:
		return ""
	case <-ctx.Done():
		return ""
	}
}

// close releases the send half and drops every pending completion slot, so
// blocked callers fail with ErrConnectionLost instead of hanging. Safe to
// call more than once.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	_ = s.transport.Close()
}

// handle is the two-state connection holder: disconnected, or exactly one
// owned Session. Callers reach the session only through current, which
// forces them to handle the disconnected case.
type handle struct {
	mu   sync.Mutex
	sess *Session
}

// current returns the connected session or ErrNotConnected.
func (h *handle) current() (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess == nil {
		return nil, ErrNotConnected
	}
	return h.sess, nil
}

// swap installs next (which may be nil) and returns the previous session.
func (h *handle) swap(next *Session) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.sess
	h.sess = next
	return prev
}

// clear empties the handle only if target is still current. A reader whose
// session was already replaced must not clobber its successor.
func (h *handle) clear(target *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess != target {
		return false
	}
	h.sess = nil
	return true
}
