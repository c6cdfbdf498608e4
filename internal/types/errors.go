package types

import "errors"

// Sentinel errors forming the failure taxonomy. Callers branch with
// errors.Is; store packages wrap these with operation context.
var (
	// ErrUserNotFound means the --user lookup failed. Fatal to session start.
	ErrUserNotFound = errors.New("user not found")

	// ErrSchemaMissing means a required remote table is absent. Clients
	// refuse to proceed (exit code 2); schema creation is an admin task.
	ErrSchemaMissing = errors.New("remote schema missing")

	// ErrBadInput rejects empty or malformed writes before they hit a store.
	ErrBadInput = errors.New("bad input")

	// ErrNetworkTransient marks remote failures that degrade to a
	// local-only save with eventual upload through the sync queue.
	ErrNetworkTransient = errors.New("transient network error")

	// ErrAICancelled is the user-driven abort of an in-flight AI call.
	ErrAICancelled = errors.New("ai call cancelled")

	// ErrConflictUnresolved is returned under the manual conflict strategy;
	// the item is logged and skipped.
	ErrConflictUnresolved = errors.New("conflict unresolved")

	// ErrNotFound is the generic store-level miss.
	ErrNotFound = errors.New("not found")
)
