// Package config resolves ClawPal's on-disk layout and loads configuration.
//
// Two kinds of configuration live here:
//
//   - The daemon's own YAML config (gateway URL, bridge timings, SSH hosts,
//     logging), loaded with Load. Environment variables in ${VAR} form are
//     expanded and duration fields are parsed from their raw string values.
//
//   - The managed OpenClaw config file (openclaw.json), which other processes
//     also write. It is read tolerantly (comments and trailing commas are
//     accepted) and written atomically via a temp file and rename.
//
// Paths are resolved once with ResolvePaths and passed around as a value.
package config
