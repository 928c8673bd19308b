package repository

import "errors"

// Storage-level rejections shared by every store implementation. Missing rows
// are reported as sql.ErrNoRows.
var (
	ErrCapacityExceeded     = errors.New("class session capacity exceeded")
	ErrDuplicateParticipant = errors.New("participant already enrolled in class session")
	ErrStatusConflict       = errors.New("enrollment status changed concurrently")
	ErrEntitlementExhausted = errors.New("entitlement exhausted")
	ErrEntitlementExpired   = errors.New("entitlement expired")
)
