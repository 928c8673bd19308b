package models

import "time"

// EnrollmentStatus is the roll-call state of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusAbsent    EnrollmentStatus = "ABSENT"
	EnrollmentStatusOnLeave   EnrollmentStatus = "ON_LEAVE"
)

// Valid returns true when the status is a supported value.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusEnrolled, EnrollmentStatusCompleted, EnrollmentStatusAbsent, EnrollmentStatusOnLeave:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is a roll-call outcome.
func (s EnrollmentStatus) Terminal() bool {
	return s.Valid() && s != EnrollmentStatusEnrolled
}

// Enrollment binds one participant to one class session, paid for with one
// entitlement use.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	ClassSessionID string           `db:"class_session_id" json:"class_session_id"`
	ParticipantID  string           `db:"participant_id" json:"participant_id"`
	EntitlementID  string           `db:"entitlement_id" json:"entitlement_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	EnrolledBy     *string          `db:"enrolled_by" json:"enrolled_by,omitempty"`
	Seq            int64            `db:"seq" json:"-"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}
