// ABOUTME: WebSocket node client that registers with the gateway as role "node".
// ABOUTME: Runs the reader loop, fans out events, and brokers invoke dispositions.

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/YHlorra/clawpal/internal/identity"
)

// Timing constants. DefaultAutoRejectDelay must stay strictly below
// GatewayInvokeTimeout: the agent then sees "user is reviewing" instead of a
// generic gateway timeout.
const (
	DefaultRequestTimeout  = 30 * time.Second
	DefaultChallengeWait   = 3 * time.Second
	GatewayInvokeTimeout   = 30 * time.Second
	DefaultAutoRejectDelay = 25 * time.Second
)

// fallbackNodeID is used when the local hostname cannot be resolved.
const fallbackNodeID = "clawpal-unknown"

const userPendingMessage = "The command is awaiting user approval in ClawPal. " +
	"If the user executes it, the result will be provided as a follow-up message."

// ErrUnknownInvoke is returned when resolving an invocation id that is not
// (or no longer) pending.
var ErrUnknownInvoke = errors.New("unknown invoke id")

// Notifier receives local notifications from the bridge. Implementations
// must not block; they are called from the reader goroutine.
type Notifier interface {
	// Connected fires once the handshake completed and stale invokes were
	// drained.
	Connected()
	// Disconnected fires when the connection is lost, with a human-readable
	// reason. A handshake the gateway rejects never fires it, but a transport
	// drop during the handshake can, alongside the Connect error.
	Disconnected(reason string)
	// InvokeReceived fires once per new invocation, already classified.
	InvokeReceived(inv Invoke)
	// Notice carries generic error notices that are not fatal to the session.
	Notice(msg string)
}

// Config controls one Client.
type Config struct {
	// URL is the gateway WebSocket endpoint.
	URL string
	// Commands overrides the advertised command names. The names must match
	// the gateway's node command vocabulary.
	Commands []string
	// Version is reported in the client descriptor.
	Version string

	RequestTimeout  time.Duration
	AutoRejectDelay time.Duration
	ChallengeWait   time.Duration

	// Dial overrides the transport dialer; tests inject fakes here.
	Dial DialFunc
}

func (c *Config) withDefaults() {
	if len(c.Commands) == 0 {
		c.Commands = []string{CommandSystemRun}
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.AutoRejectDelay <= 0 {
		c.AutoRejectDelay = DefaultAutoRejectDelay
	}
	if c.ChallengeWait <= 0 {
		c.ChallengeWait = DefaultChallengeWait
	}
	if c.Dial == nil {
		c.Dial = DialWebSocket
	}
}

// CredentialSource resolves the credentials for one connection attempt.
// identity.Source satisfies it.
type CredentialSource interface {
	Resolve() (identity.Credentials, error)
}

// Client is the node bridge. One reader goroutine per connection cooperates
// with foreground callers and per-invocation auto-reject timers; all shared
// state is confined to the session handle and the invoke store.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	notifier Notifier

	handle  handle
	invokes *invokeStore

	now func() time.Time
}

// New creates a Client. The notifier must be non-nil.
func New(cfg Config, notifier Notifier, logger *slog.Logger) *Client {
	cfg.withDefaults()
	return &Client{
		cfg:      cfg,
		logger:   logger,
		notifier: notifier,
		invokes:  newInvokeStore(),
		now:      time.Now,
	}
}

// Connect establishes the gateway connection as a node and blocks until the
// handshake completes or definitively fails. Any previous session is torn
// down first. Invokes buffered before authentication completed are rejected
// STALE before the Connected notification fires.
func (c *Client) Connect(ctx context.Context, source CredentialSource) error {
	// Tear down any previous session but keep the invoke store: invokes that
	// survived a connection loss are what the post-handshake drain rejects.
	c.closeSession()

	creds, err := source.Resolve()
	if err != nil {
		return err
	}

	transport, err := c.cfg.Dial(ctx, c.cfg.URL)
	if err != nil {
		return err
	}

	nodeID := fallbackNodeID
	if host, err := os.Hostname(); err == nil && host != "" {
		nodeID = host
	}

	sess := newSession(transport, nodeID)
	c.handle.swap(sess)

	go c.readLoop(sess)

	if err := c.handshake(ctx, sess, creds); err != nil {
		// Quiet teardown: the connection was never announced, the caller
		// gets the error instead of a Disconnected notification.
		c.handle.clear(sess)
		sess.close()
		return err
	}

	// Invokes carried over from a lost connection, or buffered while the
	// handshake was still in flight, cannot be completed on their original
	// session; reject them so the agent sessions unblock.
	for _, stale := range c.invokes.drain() {
		if err := c.sendInvokeError(ctx, stale.ID, stale.NodeID, CodeStale, "Node reconnected, rejecting stale invoke"); err != nil {
			c.logger.Warn("failed to reject stale invoke", "invoke_id", stale.ID, "error", err)
		}
	}

	c.logger.Info("node bridge connected", "node_id", nodeID, "gateway", c.cfg.URL)
	c.notifier.Connected()
	return nil
}

// Disconnect tears down the current session, if any. Pending completion
// slots are dropped (blocked callers fail) and the invoke store is cleared.
func (c *Client) Disconnect() {
	c.closeSession()
	c.invokes.drain()
}

// closeSession releases the current session without touching the invoke
// store, so records can still be drained STALE on the next connection.
func (c *Client) closeSession() {
	if sess := c.handle.swap(nil); sess != nil {
		sess.close()
	}
}

// IsConnected reports whether a session currently exists.
func (c *Client) IsConnected() bool {
	_, err := c.handle.current()
	return err == nil
}

// NodeID returns the locally resolved node id the bridge registered with.
func (c *Client) NodeID() (string, bool) {
	sess, err := c.handle.current()
	if err != nil {
		return "", false
	}
	return sess.nodeID, true
}

// PendingInvokes lists the invocations awaiting operator disposition, in
// arrival order.
func (c *Client) PendingInvokes() []Invoke {
	return c.invokes.snapshot()
}

// Resolve removes the invocation and reports success to the gateway,
// echoing the gateway-assigned node id captured at arrival. The returned
// expired flag is true when the invoke was already auto-rejected: the
// gateway has discarded its primary result path and the caller must surface
// the result through a side channel instead.
func (c *Client) Resolve(ctx context.Context, invokeID string, result any) (expired bool, err error) {
	inv, expired, ok := c.invokes.take(invokeID)
	if !ok {
		return false, ErrUnknownInvoke
	}
	if expired {
		return true, nil
	}
	return false, c.sendInvokeResult(ctx, inv.ID, inv.NodeID, result)
}

// Reject removes the invocation and reports a structured error to the
// gateway. The expired flag follows the same contract as Resolve.
func (c *Client) Reject(ctx context.Context, invokeID, code, message string) (expired bool, err error) {
	inv, expired, ok := c.invokes.take(invokeID)
	if !ok {
		return false, ErrUnknownInvoke
	}
	if expired {
		return true, nil
	}
	return false, c.sendInvokeError(ctx, inv.ID, inv.NodeID, code, message)
}

// sendAndAwait transmits a request and blocks for its correlated response,
// bounded by the configured request timeout. A torn-down session fails with
// ErrConnectionLost, distinctly from ErrRequestTimeout.
func (c *Client) sendAndAwait(ctx context.Context, method string, params any) (json.RawMessage, error) {
	sess, err := c.handle.current()
	if err != nil {
		return nil, err
	}

	id, ch, err := sess.send(ctx, method, params, true)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case f, ok := <-ch:
		if !ok {
			return nil, ErrConnectionLost
		}
		if !f.OK {
			if f.Error != nil {
				return nil, fmt.Errorf("%s request failed: %s", method, f.Error)
			}
			return nil, fmt.Errorf("%s request failed", method)
		}
		return f.Payload, nil
	case <-timer.C:
		sess.unregister(id)
		return nil, fmt.Errorf("%w after %s", ErrRequestTimeout, c.cfg.RequestTimeout)
	case <-ctx.Done():
		sess.unregister(id)
		return nil, ctx.Err()
	}
}

// notify transmits a request without registering a completion slot; used for
// result frames where no reply is expected.
func (c *Client) notify(ctx context.Context, method string, params any) error {
	sess, err := c.handle.current()
	if err != nil {
		return err
	}
	_, _, err = sess.send(ctx, method, params, false)
	return err
}

// invokeResultParams is the node.invoke.result params shape.
type invokeResultParams struct {
	ID      string       `json:"id"`
	NodeID  string       `json:"nodeId"`
	OK      bool         `json:"ok"`
	Payload any          `json:"payload,omitempty"`
	Error   *ResultError `json:"error,omitempty"`
}

func (c *Client) sendInvokeResult(ctx context.Context, invokeID, nodeID string, payload any) error {
	return c.notify(ctx, methodInvokeResult, invokeResultParams{
		ID:      invokeID,
		NodeID:  nodeID,
		OK:      true,
		Payload: payload,
	})
}

func (c *Client) sendInvokeError(ctx context.Context, invokeID, nodeID, code, message string) error {
	return c.notify(ctx, methodInvokeResult, invokeResultParams{
		ID:     invokeID,
		NodeID: nodeID,
		OK:     false,
		Error:  &ResultError{Code: code, Message: message},
	})
}

// readLoop is the sole router of inbound frames for sess. It delivers
// responses to the correlation table and events to the nonce slot or the
// invoke store, then tears the session down on connection loss.
func (c *Client) readLoop(sess *Session) {
	ctx := context.Background()
	for {
		data, err := sess.transport.ReadText(ctx)
		if err != nil {
			c.dropSession(sess, err)
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			// Unparseable frames are discarded, not fatal.
			c.logger.Debug("discarding unparseable frame", "error", err)
			continue
		}

		switch f.Type {
		case frameTypeResponse:
			sess.resolve(f.ID, f)
		case frameTypeEvent:
			c.handleEvent(ctx, sess, f)
		}
	}
}

// dropSession releases sess after a read failure and, if it was still the
// current session, emits the disconnect notification.
func (c *Client) dropSession(sess *Session, cause error) {
	current := c.handle.clear(sess)
	sess.close()
	if !current {
		return
	}

	reason := cause.Error()
	c.logger.Info("node bridge disconnected", "reason", reason)
	if !errors.Is(cause, ErrServerClosed) {
		c.notifier.Notice(fmt.Sprintf("node connection error: %s", reason))
	}
	c.notifier.Disconnected(reason)
}

func (c *Client) handleEvent(ctx context.Context, sess *Session, f Frame) {
	switch f.Event {
	case eventChallenge:
		var payload struct {
			Nonce string `json:"nonce"`
		}
		if err := json.Unmarshal(f.Payload, &payload); err != nil || payload.Nonce == "" {
			return
		}
		sess.offerChallenge(payload.Nonce)

	case eventInvokeRequest:
		c.handleInvoke(ctx, f.Payload)
	}
}

// handleInvoke ingests one node.invoke.request event: classify, dedupe,
// evict past capacity, surface to the operator, and arm the auto-reject.
func (c *Client) handleInvoke(ctx context.Context, payload json.RawMessage) {
	var req struct {
		ID         string          `json:"id"`
		Command    string          `json:"command"`
		NodeID     string          `json:"nodeId"`
		ParamsJSON string          `json:"paramsJSON"`
		Params     json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.ID == "" {
		c.logger.Warn("ignoring malformed invoke request", "error", err)
		return
	}

	// Arguments usually arrive string-encoded under paramsJSON; that form
	// wins over the structured params field when both are present.
	args := req.Params
	if req.ParamsJSON != "" && json.Valid([]byte(req.ParamsJSON)) {
		args = json.RawMessage(req.ParamsJSON)
	}

	inv := &Invoke{
		ID:      req.ID,
		NodeID:  req.NodeID,
		Command: req.Command,
		Args:    args,
		Risk:    classifyInvoke(req.Command, args),
	}

	dup, evicted := c.invokes.add(inv)

	// Eviction rejections go out after the store lock is released.
	for _, old := range evicted {
		if err := c.sendInvokeError(ctx, old.ID, old.NodeID, CodeEvicted, "Too many pending invokes, oldest evicted"); err != nil {
			c.logger.Warn("failed to reject evicted invoke", "invoke_id", old.ID, "error", err)
		}
	}

	if dup {
		// The gateway sent the same request twice; do not re-surface it.
		c.logger.Debug("duplicate invoke ignored", "invoke_id", inv.ID)
		return
	}

	c.logger.Info("invoke received",
		"invoke_id", inv.ID,
		"command", inv.Command,
		"risk", inv.Risk,
	)
	c.notifier.InvokeReceived(*inv)

	c.armAutoReject(inv.ID, inv.NodeID)
}

// armAutoReject schedules the USER_PENDING rejection. The timer re-checks
// record liveness immediately before acting, so it is a safe no-op after the
// operator resolved the invoke or the session was torn down.
func (c *Client) armAutoReject(invokeID, nodeID string) {
	time.AfterFunc(c.cfg.AutoRejectDelay, func() {
		if !c.invokes.contains(invokeID) {
			return
		}
		// Mark expired but keep the record: the operator may still act,
		// with the result routed through the side channel.
		c.invokes.markExpired(invokeID)
		if err := c.sendInvokeError(context.Background(), invokeID, nodeID, CodeUserPending, userPendingMessage); err != nil {
			c.logger.Warn("failed to send auto-reject", "invoke_id", invokeID, "error", err)
		}
	})
}
