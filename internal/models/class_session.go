package models

import "time"

// ClassSession is a scheduled, fixed-capacity class occurrence. Sessions are
// owned by the scheduling subsystem and read-only here.
type ClassSession struct {
	ID          string    `db:"id" json:"id"`
	Name        *string   `db:"name" json:"name,omitempty"`
	Room        *string   `db:"room" json:"room,omitempty"`
	TeacherName *string   `db:"teacher_name" json:"teacher_name,omitempty"`
	Rows        int       `db:"seat_rows" json:"rows"`
	Columns     int       `db:"seat_columns" json:"columns"`
	StartTime   time.Time `db:"start_time" json:"start_time"`
	EndTime     time.Time `db:"end_time" json:"end_time"`
}

// Capacity is the size of the seat grid.
func (s ClassSession) Capacity() int {
	if s.Rows <= 0 || s.Columns <= 0 {
		return 0
	}
	return s.Rows * s.Columns
}

// LockedAt reports whether the session has ended at the given instant.
func (s ClassSession) LockedAt(now time.Time) bool {
	return now.After(s.EndTime)
}

// SeatPosition maps a row-major seat index onto the grid.
func (s ClassSession) SeatPosition(index int) (row, column int) {
	if s.Columns <= 0 {
		return 0, index
	}
	return index / s.Columns, index % s.Columns
}
