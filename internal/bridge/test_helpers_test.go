// ABOUTME: Shared fakes for bridge tests: in-memory transport, recording notifier.
// ABOUTME: Provides a harness that dials fake transports and answers the handshake.

package bridge

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/YHlorra/clawpal/internal/identity"
)

// fakeTransport is an in-memory Transport fed by tests.
type fakeTransport struct {
	in     chan []byte
	writes chan Frame

	mu   sync.Mutex
	sent []Frame

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 128),
		writes: make(chan Frame, 128),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) ReadText(ctx context.Context) ([]byte, error) {
	select {
	case data := <-t.in:
		return data, nil
	case <-t.closed:
		return nil, ErrServerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) WriteJSON(_ context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	t.mu.Lock()
	t.sent = append(t.sent, f)
	t.mu.Unlock()

	select {
	case t.writes <- f:
	default:
	}
	return nil
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// deliver marshals v and feeds it to the reader as one text frame.
func (t *fakeTransport) deliver(tb testing.TB, v any) {
	tb.Helper()
	data, err := json.Marshal(v)
	require.NoError(tb, err)
	t.in <- data
}

// sentFrames returns a copy of everything written so far.
func (t *fakeTransport) sentFrames() []Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Frame, len(t.sent))
	copy(out, t.sent)
	return out
}

// awaitWrite blocks for the next outbound frame matching method, skipping
// others.
func (t *fakeTransport) awaitWrite(tb testing.TB, method string) Frame {
	tb.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-t.writes:
			if f.Method == method {
				return f
			}
		case <-deadline:
			tb.Fatalf("no %s frame was written", method)
		}
	}
}

// recordingNotifier captures bridge notifications on buffered channels.
type recordingNotifier struct {
	connected    chan struct{}
	disconnected chan string
	invokes      chan Invoke
	notices      chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		connected:    make(chan struct{}, 16),
		disconnected: make(chan string, 16),
		invokes:      make(chan Invoke, 128),
		notices:      make(chan string, 128),
	}
}

func (r *recordingNotifier) Connected()                 { r.connected <- struct{}{} }
func (r *recordingNotifier) Disconnected(reason string) { r.disconnected <- reason }
func (r *recordingNotifier) InvokeReceived(inv Invoke)  { r.invokes <- inv }
func (r *recordingNotifier) Notice(msg string)          { r.notices <- msg }

func (r *recordingNotifier) awaitInvoke(tb testing.TB) Invoke {
	tb.Helper()
	select {
	case inv := <-r.invokes:
		return inv
	case <-time.After(2 * time.Second):
		tb.Fatal("no invoke notification arrived")
		return Invoke{}
	}
}

// staticSource hands out pre-built credentials.
type staticSource struct {
	creds identity.Credentials
}

func (s staticSource) Resolve() (identity.Credentials, error) {
	return s.creds, nil
}

func testCreds(tb testing.TB) identity.Credentials {
	tb.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(tb, err)
	return identity.Credentials{
		Token:        "tok-test",
		DeviceID:     "dev-test",
		Key:          priv,
		PublicKeyB64: identity.PublicKeyBase64(priv),
	}
}

// harness wires a Client to fake transports, one per dial.
type harness struct {
	client     *Client
	notifier   *recordingNotifier
	transports chan *fakeTransport
	creds      identity.Credentials
}

func newHarness(tb testing.TB, cfg Config) *harness {
	tb.Helper()

	h := &harness{
		notifier:   newRecordingNotifier(),
		transports: make(chan *fakeTransport, 8),
		creds:      testCreds(tb),
	}

	cfg.URL = "ws://gateway.test"
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	if cfg.ChallengeWait == 0 {
		cfg.ChallengeWait = 10 * time.Millisecond
	}
	cfg.Dial = func(_ context.Context, _ string) (Transport, error) {
		ft := newFakeTransport()
		h.transports <- ft
		return ft, nil
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.client = New(cfg, h.notifier, logger)
	return h
}

// connect runs Connect with a goroutine answering the handshake, returning
// the active transport.
func (h *harness) connect(tb testing.TB) *fakeTransport {
	tb.Helper()

	done := make(chan *fakeTransport, 1)
	go func() {
		ft := <-h.transports
		f := ft.awaitWrite(tb, methodConnect)
		ft.deliver(tb, Frame{Type: frameTypeResponse, ID: f.ID, OK: true})
		done <- ft
	}()

	require.NoError(tb, h.client.Connect(context.Background(), staticSource{h.creds}))
	return <-done
}

// invokeEvent builds a node.invoke.request frame.
func invokeEvent(tb testing.TB, id, nodeID, command string, args any) Frame {
	tb.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      id,
		"command": command,
		"nodeId":  nodeID,
		"params":  args,
	})
	require.NoError(tb, err)
	return Frame{Type: frameTypeEvent, Event: eventInvokeRequest, Payload: payload}
}
