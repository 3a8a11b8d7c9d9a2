// ABOUTME: Bounded, deduplicated store of gateway invocations awaiting operator review.
// ABOUTME: Insertion order drives oldest-first eviction; an expired set marks auto-rejected ids.

package bridge

import (
	"container/list"
	"encoding/json"
	"strings"
	"sync"
)

// MaxPendingInvokes caps the pending-invoke store. Inserting beyond the cap
// evicts the oldest entries first.
const MaxPendingInvokes = 50

// CommandSystemRun is the generic shell-execution command this node
// advertises by default.
const CommandSystemRun = "system.run"

// Risk classification values. Advisory only: the allow-list does not parse
// shell syntax and must not be treated as a security boundary.
const (
	RiskRead  = "read"
	RiskWrite = "write"
)

// Invoke is one gateway-issued invocation awaiting operator disposition.
type Invoke struct {
	ID string `json:"id"`
	// NodeID is the gateway-assigned node id from the request. It must be
	// echoed verbatim in every result; substituting the locally resolved
	// node id makes the gateway drop the result.
	NodeID  string          `json:"nodeId"`
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args"`
	Risk    string          `json:"type"`
}

// invokeStore owns all PendingInvoke records from insertion until removal.
// The store and the expired-marker set are guarded independently so invoke
// bookkeeping never contends with handshake or request activity.
type invokeStore struct {
	mu    sync.Mutex
	byID  map[string]*list.Element
	order *list.List // *Invoke values, oldest at front

	expiredMu sync.Mutex
	expired   map[string]struct{}
}

func newInvokeStore() *invokeStore {
	return &invokeStore{
		byID:    make(map[string]*list.Element),
		order:   list.New(),
		expired: make(map[string]struct{}),
	}
}

// add inserts inv unless its id is already present. Returns whether it was a
// duplicate, plus the entries evicted to stay under MaxPendingInvokes; the
// caller sends their terminal rejections after this lock is released.
func (st *invokeStore) add(inv *Invoke) (dup bool, evicted []*Invoke) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.byID[inv.ID]; exists {
		return true, nil
	}

	for st.order.Len() >= MaxPendingInvokes {
		front := st.order.Front()
		old := front.Value.(*Invoke)
		st.order.Remove(front)
		delete(st.byID, old.ID)
		evicted = append(evicted, old)
	}

	st.byID[inv.ID] = st.order.PushBack(inv)
	return false, evicted
}

// take removes the record for id and reports whether it had been marked
// expired. An expired record's primary result path is already closed out on
// the gateway side; the caller must route its result through a side channel.
func (st *invokeStore) take(id string) (inv *Invoke, expired bool, ok bool) {
	st.mu.Lock()
	elem, exists := st.byID[id]
	if exists {
		inv = elem.Value.(*Invoke)
		st.order.Remove(elem)
		delete(st.byID, id)
	}
	st.mu.Unlock()

	if !exists {
		return nil, false, false
	}

	st.expiredMu.Lock()
	_, expired = st.expired[id]
	delete(st.expired, id)
	st.expiredMu.Unlock()

	return inv, expired, true
}

// contains reports whether id is still pending.
func (st *invokeStore) contains(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.byID[id]
	return ok
}

// markExpired records that id was auto-rejected while still pending. The
// record itself stays in the store so the operator can still act on it.
func (st *invokeStore) markExpired(id string) {
	st.expiredMu.Lock()
	defer st.expiredMu.Unlock()
	st.expired[id] = struct{}{}
}

// drain removes and returns every pending record in insertion order and
// clears the expired set.
func (st *invokeStore) drain() []*Invoke {
	st.mu.Lock()
	out := make([]*Invoke, 0, st.order.Len())
	for elem := st.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(*Invoke))
	}
	st.order.Init()
	st.byID = make(map[string]*list.Element)
	st.mu.Unlock()

	st.expiredMu.Lock()
	st.expired = make(map[string]struct{})
	st.expiredMu.Unlock()

	return out
}

// snapshot returns the pending records in insertion order without removal.
func (st *invokeStore) snapshot() []Invoke {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Invoke, 0, st.order.Len())
	for elem := st.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, *elem.Value.(*Invoke))
	}
	return out
}

func (st *invokeStore) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.order.Len()
}

// readPrefixes and readExact form the fixed allow-list of read-only shell
// commands. Prefix entries require a trailing space so "lsof" is not "ls".
var readPrefixes = []string{
	"cat ", "ls ", "head ", "tail ", "wc ", "grep ", "find ",
	"which ", "echo ", "ps ", "df ", "free ",
}

var readExact = map[string]struct{}{
	"date":     {},
	"uname":    {},
	"uptime":   {},
	"hostname": {},
}

// classifyInvoke returns the advisory risk for an invocation. Only the
// shell-execution command is inspected; every other command is write.
func classifyInvoke(command string, args json.RawMessage) string {
	if command != CommandSystemRun {
		return RiskWrite
	}

	shell := extractShellCommand(args)
	for _, prefix := range readPrefixes {
		if strings.HasPrefix(shell, prefix) {
			return RiskRead
		}
	}
	if _, ok := readExact[strings.TrimSpace(shell)]; ok {
		return RiskRead
	}
	return RiskWrite
}

// ShellCommand extracts the literal shell command from system.run args, for
// callers that execute approved invocations. The boolean is false when the
// args carry no usable command.
func ShellCommand(args json.RawMessage) (string, bool) {
	s := extractShellCommand(args)
	return s, s != ""
}

// extractShellCommand pulls the literal shell command out of system.run
// args. The gateway sends "command" either as a plain string ("ls -la") or
// as an argv-style array whose last element is the actual command
// (["/bin/sh", "-lc", "ls -la"]).
func extractShellCommand(args json.RawMessage) string {
	var parsed struct {
		Command json.RawMessage `json:"command"`
	}
	if err := json.Unmarshal(args, &parsed); err != nil || len(parsed.Command) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(parsed.Command, &s); err == nil {
		return s
	}

	var argv []string
	if err := json.Unmarshal(parsed.Command, &argv); err == nil && len(argv) > 0 {
		return argv[len(argv)-1]
	}
	return ""
}
