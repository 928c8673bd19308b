package models

// attendanceTransitions lists every permitted from -> to status change.
// Outcomes may be reset to ENROLLED or corrected directly to another outcome.
var attendanceTransitions = map[EnrollmentStatus]map[EnrollmentStatus]bool{
	EnrollmentStatusEnrolled: {
		EnrollmentStatusCompleted: true,
		EnrollmentStatusAbsent:    true,
		EnrollmentStatusOnLeave:   true,
	},
	EnrollmentStatusCompleted: {
		EnrollmentStatusEnrolled: true,
		EnrollmentStatusAbsent:   true,
		EnrollmentStatusOnLeave:  true,
	},
	EnrollmentStatusAbsent: {
		EnrollmentStatusEnrolled:  true,
		EnrollmentStatusCompleted: true,
		EnrollmentStatusOnLeave:   true,
	},
	EnrollmentStatusOnLeave: {
		EnrollmentStatusEnrolled:  true,
		EnrollmentStatusCompleted: true,
		EnrollmentStatusAbsent:    true,
	},
}

// CanTransition reports whether an enrollment may move from one status to
// another. Staying in the same status is always allowed.
func CanTransition(from, to EnrollmentStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	return attendanceTransitions[from][to]
}
