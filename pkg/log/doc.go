/*
Package log provides structured logging for the vault engine using
zerolog.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│  Global Logger (zerolog.Logger)                           │
	│    - initialized once via log.Init()                      │
	│    - thread-safe for concurrent use                       │
	│  Configuration                                             │
	│    - Level: debug/info/warn/error                          │
	│    - Format: JSON (production) or console (development)   │
	│    - Output: stdout or a custom io.Writer                  │
	│  Component loggers                                         │
	│    - WithComponent("vault"), WithComponent("upload"), ...  │
	│    - WithVaultID, WithUploadID, WithSessionID              │
	└────────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	vaultLog := log.WithComponent("vault")
	vaultLog.Info().Str("vault_id", id.String()).Msg("vault created")

	uploadLog := log.WithUploadID(uploadID.String())
	uploadLog.Warn().Err(err).Msg("chunk rejected")

# Conventions

Every collection module and lifecycle coordinator takes a component
logger at construction time rather than reading the global Logger
directly, so call sites read cleanly and tests can swap in a discard
writer. Coordinators log state transitions (old status → new status) at
info level and guard failures at warn level; collection modules log
storage errors at error level and nothing below that, since storage
errors are already wrapped into a vaulterr.Code by the caller.

Secrets and ciphertext payloads are never logged — only identifiers,
sizes, and counts.
*/
package log
