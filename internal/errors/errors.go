package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrInvalidInput - malformed value from a config file, override or CLI flag
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig - a hot config file failed validation (last-known-good stays active)
	ErrInvalidConfig = errors.New("invalid config")

	// ErrNotFound - folder, state entry or file not found
	ErrNotFound = errors.New("not found")

	// ErrDuplicate - message identity already present in the ledger
	ErrDuplicate = errors.New("duplicate message")

	// ErrLocked - another instance holds the process lock (exit, never retry)
	ErrLocked = errors.New("instance locked")

	// ErrStateMissing - required state file absent (skip tick)
	ErrStateMissing = errors.New("required state missing")

	// ErrNoStaff - active roster is empty (leave message unread)
	ErrNoStaff = errors.New("no active staff")

	// ErrWrongMailbox - message belongs to a different mailbox store
	ErrWrongMailbox = errors.New("wrong mailbox")

	// ErrTransient - transport failure (log and skip, retried next tick, never poison)
	ErrTransient = errors.New("transient error")

	// ErrInternal - unexpected processing failure (counts toward poison quarantine)
	ErrInternal = errors.New("internal error")
)
