// ABOUTME: Package history documentation.
// ABOUTME: Config snapshot storage: content files on disk, metadata in SQLite.

// Package history records snapshots of the openclaw config so destructive
// changes can be rolled back. Snapshot contents live as plain files under a
// snapshots directory; their metadata lives in a SQLite index capped at 200
// entries, oldest pruned first.
package history
