// Package faults declares the fault taxonomy of spec.md §7 so that recovery
// policy can be chosen with errors.Is/errors.As at the boundary each fault
// belongs to, instead of string-matching log messages.
package faults

import "errors"

// Sentinel faults. Wrap with fmt.Errorf("...: %w", ErrX) to add context
// while keeping errors.Is(err, ErrX) working.
var (
	// ErrConfig is a malformed or missing configuration value. Fatal at
	// startup (process exit code 2).
	ErrConfig = errors.New("config fault")

	// ErrDiscovery is a venue instruments-endpoint failure. Retried with
	// backoff; the venue contributes no books while in this state.
	ErrDiscovery = errors.New("venue discovery fault")

	// ErrTransport is a WebSocket/REST transport failure (disconnect,
	// timeout). The owning Connector reconnects with backoff; other venues
	// are unaffected.
	ErrTransport = errors.New("transport fault")

	// ErrProtocol is a malformed message or a sequence gap. Recovered by a
	// local resync; the affected market is marked invalid until resolved.
	ErrProtocol = errors.New("protocol fault")

	// ErrData is a structurally invalid snapshot (crossed book, negative
	// size, non-monotonic timestamp). The snapshot is rejected.
	ErrData = errors.New("data fault")

	// ErrDownstream is a notifier or persistence failure. Retried then
	// dropped; engines never block on it.
	ErrDownstream = errors.New("downstream fault")
)
