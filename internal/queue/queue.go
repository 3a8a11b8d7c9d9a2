// ABOUTME: In-memory FIFO of labeled openclaw commands awaiting apply.
// ABOUTME: Commands carry uuid ids; order is insertion order.

package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyCommand rejects enqueueing a command with no argv.
var ErrEmptyCommand = errors.New("command cannot be empty")

// PendingCommand is one staged CLI invocation. Command is the full argv
// including the leading "openclaw"; runners strip it and supply their own
// binary.
type PendingCommand struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Command   []string  `json:"command"`
	CreatedAt time.Time `json:"createdAt"`
}

// Queue is a mutex-guarded FIFO of pending commands.
type Queue struct {
	mu   sync.Mutex
	cmds []PendingCommand
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends a command and returns its record.
func (q *Queue) Enqueue(label string, command []string) (PendingCommand, error) {
	if len(command) == 0 {
		return PendingCommand{}, ErrEmptyCommand
	}
	cmd := PendingCommand{
		ID:        uuid.NewString(),
		Label:     label,
		Command:   command,
		CreatedAt: time.Now().UTC(),
	}
	q.mu.Lock()
	q.cmds = append(q.cmds, cmd)
	q.mu.Unlock()
	return cmd, nil
}

// Remove drops the command with the given id, reporting whether it existed.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, c := range q.cmds {
		if c.ID == id {
			q.cmds = append(q.cmds[:i], q.cmds[i+1:]...)
			return true
		}
	}
	return false
}

// List returns the pending commands in insertion order.
func (q *Queue) List() []PendingCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingCommand, len(q.cmds))
	copy(out, q.cmds)
	return out
}

// Clear drops every pending command.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.cmds = nil
	q.mu.Unlock()
}

// Len reports the number of pending commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cmds)
}
