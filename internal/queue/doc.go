// ABOUTME: Package queue documentation.
// ABOUTME: FIFO of staged openclaw CLI commands with preview and rollback.

// Package queue stages openclaw CLI commands so the operator can review a
// batch before it touches the real config. Preview runs the batch against a
// sandboxed copy of the config (via OPENCLAW_HOME); Apply snapshots the
// config first, stops on the first failure, and restores the snapshot.
package queue
