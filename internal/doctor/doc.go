// ABOUTME: Package doctor documentation.
// ABOUTME: Health checks and auto-fixes for the managed openclaw.json.

// Package doctor inspects the openclaw config for syntax, required fields,
// port range, and filesystem permission problems, producing a scored report.
// Issues marked auto-fixable can be repaired in place.
package doctor
