package errors

import "errors"

var (
	ErrInvalidSubmission   = errors.New("invalid petition submission")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidStatus       = errors.New("invalid petition status")
	ErrUnknownFamily       = errors.New("unknown counter family")
	ErrRateLimitExceeded   = errors.New("submission rate limit exceeded")
	ErrLimiterUnavailable  = errors.New("submission rate limiter unavailable")
	ErrDuplicateSubmission = errors.New("petition already submitted for this fingerprint")
	ErrPetitionNotFound    = errors.New("petition not found")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrModelRateLimited    = errors.New("moderation model rate limited")
	ErrModerationFatal     = errors.New("moderation classification failed")
	ErrUnparsableVerdict   = errors.New("moderation response is not a valid verdict")
	ErrUnauthenticated     = errors.New("session is not authenticated")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrLockHeld            = errors.New("reconciliation lock is held by another pass")
)
