package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these, not on
// the message text.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	ErrCodeSweepInProgress = "sweep_in_progress"
	ErrCodeListFailed      = "list_failed"
	ErrCodeNotReady        = "not_ready"
)
