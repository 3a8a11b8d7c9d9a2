// ABOUTME: Package sshpool documentation.
// ABOUTME: Keyed pool of SSH connections used for remote openclaw management.

// Package sshpool maintains one SSH connection per configured host and runs
// remote commands and file operations over them.
//
// File operations are implemented as shell commands (cat, base64, stat, rm)
// rather than SFTP, so they work against minimal sshd setups. Paths beginning
// with "~" are resolved against the remote $HOME captured at connect time.
package sshpool
