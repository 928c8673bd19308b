package models

import "time"

// RosterEventType names a published roster change.
type RosterEventType string

const (
	EventEnrollmentCreated   RosterEventType = "roster.enrollment.created"
	EventEnrollmentCancelled RosterEventType = "roster.enrollment.cancelled"
	EventAttendanceUpdated   RosterEventType = "roster.attendance.updated"
	EventSessionClosed       RosterEventType = "roster.session.closed"
)

// RosterEvent is the message body published for downstream consumers.
type RosterEvent struct {
	ID             string           `json:"id"`
	Type           RosterEventType  `json:"type"`
	ClassSessionID string           `json:"class_session_id"`
	EnrollmentID   string           `json:"enrollment_id,omitempty"`
	ParticipantID  string           `json:"participant_id,omitempty"`
	EntitlementID  string           `json:"entitlement_id,omitempty"`
	Status         EnrollmentStatus `json:"status,omitempty"`
	StaffID        string           `json:"staff_id,omitempty"`
	Completed      int              `json:"completed,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}
