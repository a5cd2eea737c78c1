package domain

import "errors"

// Failure taxonomy shared by the engine and its collaborators. All of them are
// tick-scoped: the next scheduled run is the retry.
var (
	// ErrSourceUnavailable is returned by a listing source when the fetch or
	// the decoding of its response failed. The preference is skipped for the
	// current tick.
	ErrSourceUnavailable = errors.New("listing source unavailable")

	// ErrDeliveryFailed is returned by a notifier when a message could not be
	// handed to the transport. The application row is already durable, so the
	// notification is lost rather than duplicated.
	ErrDeliveryFailed = errors.New("notification delivery failed")

	// ErrRepository wraps store failures (unreachable database, failed
	// statement) surfaced by the persistence adapters.
	ErrRepository = errors.New("repository error")
)
