package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-roster-api/internal/models"
	appErrors "github.com/noah-isme/class-roster-api/pkg/errors"
)

func TestSetStatusTransitions(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 1, 2, baseTime.Add(time.Hour))
	f.addEntitlement("ent-1", intPtr(3), nil)
	enrollment, err := f.enroll("cls-1", "p-1", "ent-1")
	require.NoError(t, err)
	ctx := context.Background()

	steps := []models.EnrollmentStatus{
		models.EnrollmentStatusAbsent,
		models.EnrollmentStatusCompleted,
		models.EnrollmentStatusOnLeave,
		models.EnrollmentStatusEnrolled,
		models.EnrollmentStatusEnrolled,
	}
	for _, status := range steps {
		updated, err := f.attendance.SetStatus(ctx, SetStatusRequest{EnrollmentID: enrollment.ID, Status: status})
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
		stored, err := f.store.FindByID(ctx, enrollment.ID)
		require.NoError(t, err)
		assert.Equal(t, status, stored.Status)
	}
	assert.Equal(t, 2, *f.remaining(t, "ent-1"), "attendance never touches the entitlement")
}

func TestSetStatusRejections(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 1, 2, baseTime.Add(time.Hour))
	f.addEntitlement("ent-1", intPtr(3), nil)
	enrollment, err := f.enroll("cls-1", "p-1", "ent-1")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = f.attendance.SetStatus(ctx, SetStatusRequest{EnrollmentID: enrollment.ID, Status: "LATE"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.attendance.SetStatus(ctx, SetStatusRequest{EnrollmentID: "missing", Status: models.EnrollmentStatusAbsent})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestBatchCompleteSkipsRecordedOutcomes(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 2, 2, baseTime.Add(time.Hour))
	ctx := context.Background()
	var absent string
	for i, p := range []string{"p-1", "p-2", "p-3"} {
		f.addEntitlement(p, intPtr(1), nil)
		e, err := f.enroll("cls-1", p, p)
		require.NoError(t, err)
		if i == 1 {
			absent = e.ID
		}
	}
	_, err := f.attendance.SetStatus(ctx, SetStatusRequest{EnrollmentID: absent, Status: models.EnrollmentStatusAbsent})
	require.NoError(t, err)

	result, err := f.attendance.BatchComplete(ctx, "cls-1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempted)
	assert.Equal(t, 2, result.Completed)

	stored, err := f.store.FindByID(ctx, absent)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusAbsent, stored.Status)

	_, err = f.attendance.BatchComplete(ctx, "missing", "staff-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestBatchCompleteEmitsSessionClosed(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 1, 1, baseTime.Add(time.Hour))
	hooks := &recordingHooks{}
	svc := NewAttendanceService(f.store, NewClock(func() time.Time { return baseTime }, nil), RosterHooks{Cache: hooks, Events: hooks}, 0, nil)

	result, err := svc.BatchComplete(context.Background(), "cls-1", "staff-1")
	require.NoError(t, err)
	assert.Zero(t, result.Attempted)
	assert.NotNil(t, result.Items)
	require.Len(t, hooks.events, 1)
	assert.Equal(t, models.EventSessionClosed, hooks.events[0].Type)
}
