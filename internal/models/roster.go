package models

// SeatState distinguishes empty from occupied seats.
type SeatState string

const (
	SeatEmpty    SeatState = "EMPTY"
	SeatOccupied SeatState = "OCCUPIED"
)

// SeatView is one cell of the seat grid.
type SeatView struct {
	Index       int                 `json:"index"`
	Row         int                 `json:"row"`
	Column      int                 `json:"column"`
	State       SeatState           `json:"state"`
	Enrollment  *Enrollment         `json:"enrollment,omitempty"`
	Participant *Participant        `json:"participant,omitempty"`
	Entitlement *EntitlementSummary `json:"entitlement,omitempty"`
}

// RosterView is the derived seat map for a class session.
type RosterView struct {
	Session  ClassSession `json:"session"`
	Capacity int          `json:"capacity"`
	Enrolled int          `json:"enrolled"`
	Locked   bool         `json:"locked"`
	Seats    []SeatView   `json:"seats"`
}
