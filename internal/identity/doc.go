// Package identity supplies the credentials the node bridge authenticates
// with: a bearer token, a device identifier, and an Ed25519 signing key.
//
// Credentials come from one of two places:
//
//   - the local device identity stored under the OpenClaw home
//     (identity/device.json plus the token inside openclaw.json), or
//   - a remote-session bundle handed in by the caller, e.g. when the
//     gateway is reached through an SSH tunnel.
//
// A resolved Credentials value is immutable for the lifetime of one
// connection attempt.
package identity
