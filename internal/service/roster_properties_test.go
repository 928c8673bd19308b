package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/internal/repository/memory"
	appErrors "github.com/noah-isme/class-roster-api/pkg/errors"
)

var baseTime = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func TestConcurrentEnrollNeverExceedsCapacityAndRefundsLosers(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 2, 3, baseTime.Add(time.Hour))
	const callers = 25
	for i := 0; i < callers; i++ {
		f.addEntitlement(fmt.Sprintf("ent-%d", i), intPtr(1), nil)
	}

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.enroll("cls-1", fmt.Sprintf("p-%d", i), fmt.Sprintf("ent-%d", i))
		}(i)
	}
	wg.Wait()

	enrolled, err := f.store.ListBySession(context.Background(), "cls-1")
	require.NoError(t, err)
	assert.Len(t, enrolled, 6)

	successes := 0
	for i, err := range errs {
		if err == nil {
			successes++
			assert.Equal(t, 0, *f.remaining(t, fmt.Sprintf("ent-%d", i)))
			continue
		}
		assert.ErrorIs(t, err, appErrors.ErrCapacityExceeded)
		assert.Equal(t, 1, *f.remaining(t, fmt.Sprintf("ent-%d", i)), "failed enrollment must not keep the consumed use")
	}
	assert.Equal(t, 6, successes)
}

func TestConcurrentEnrollSameParticipantSeatsOnce(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 4, 4, baseTime.Add(time.Hour))
	f.addEntitlement("ent-1", intPtr(10), nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.enroll("cls-1", "p-1", "ent-1")
			if err != nil {
				assert.ErrorIs(t, err, appErrors.ErrAlreadyEnrolled)
			}
		}()
	}
	wg.Wait()

	enrolled, err := f.store.ListBySession(context.Background(), "cls-1")
	require.NoError(t, err)
	require.Len(t, enrolled, 1)
	assert.Equal(t, 9, *f.remaining(t, "ent-1"))
}

func TestConcurrentConsumeNeverGoesNegative(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addEntitlement("ent-1", intPtr(3), nil)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.entitlements.Consume(context.Background(), "ent-1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, *f.remaining(t, "ent-1"))
	_, err := f.entitlements.Consume(context.Background(), "ent-1")
	assert.ErrorIs(t, err, appErrors.ErrEntitlementExhausted)
}

// racingStore fills the last seat between the duplicate check and the insert.
type racingStore struct {
	*memory.RosterStore
	once sync.Once
}

func (r *racingStore) Insert(ctx context.Context, enrollment *models.Enrollment) error {
	r.once.Do(func() {
		_ = r.RosterStore.Insert(ctx, &models.Enrollment{ClassSessionID: enrollment.ClassSessionID, ParticipantID: "intruder", EntitlementID: "ent-other"})
	})
	return r.RosterStore.Insert(ctx, enrollment)
}

func TestEnrollRefundsWhenInsertLosesCapacityRace(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 1, 1, baseTime.Add(time.Hour))
	f.addEntitlement("ent-1", intPtr(4), nil)

	clock := NewClock(func() time.Time { return baseTime }, time.UTC)
	svc := NewEnrollmentService(&racingStore{RosterStore: f.store}, f.entitlements, clock, RosterHooks{}, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{SessionID: "cls-1", ParticipantID: "p-1", EntitlementID: "ent-1"})
	require.ErrorIs(t, err, appErrors.ErrCapacityExceeded)
	assert.Equal(t, 4, *f.remaining(t, "ent-1"))
}

func TestLockedSessionRejectsEnrollAndStatusButAllowsCancel(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 2, 2, baseTime.Add(time.Minute))
	f.addEntitlement("ent-1", intPtr(2), nil)
	f.addEntitlement("ent-2", intPtr(2), nil)

	enrollment, err := f.enroll("cls-1", "p-1", "ent-1")
	require.NoError(t, err)

	f.now = baseTime.Add(2 * time.Minute)

	_, err = f.enroll("cls-1", "p-2", "ent-2")
	assert.ErrorIs(t, err, appErrors.ErrSessionLocked)
	assert.Equal(t, 2, *f.remaining(t, "ent-2"))

	_, err = f.attendance.SetStatus(context.Background(), SetStatusRequest{EnrollmentID: enrollment.ID, Status: models.EnrollmentStatusCompleted})
	assert.ErrorIs(t, err, appErrors.ErrSessionLocked)

	_, err = f.attendance.BatchComplete(context.Background(), "cls-1", "staff-1")
	assert.ErrorIs(t, err, appErrors.ErrSessionLocked)

	require.NoError(t, f.enrollments.Cancel(context.Background(), enrollment.ID, "staff-1"))
	assert.Equal(t, 2, *f.remaining(t, "ent-1"))
}

// deletingStore removes one enrollment right after the batch listed it.
type deletingStore struct {
	*memory.RosterStore
	victim string
}

func (d *deletingStore) ListBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error) {
	list, err := d.RosterStore.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	_ = d.RosterStore.Delete(ctx, d.victim)
	return list, nil
}

func TestBatchCompleteReportsConcurrentlyDeletedEnrollment(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 2, 3, baseTime.Add(time.Hour))
	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		f.addEntitlement(fmt.Sprintf("ent-%d", i), intPtr(1), nil)
		e, err := f.enroll("cls-1", fmt.Sprintf("p-%d", i), fmt.Sprintf("ent-%d", i))
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	clock := NewClock(func() time.Time { return baseTime }, time.UTC)
	svc := NewAttendanceService(&deletingStore{RosterStore: f.store, victim: ids[2]}, clock, RosterHooks{}, 2, nil)

	result, err := svc.BatchComplete(context.Background(), "cls-1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, 5, result.Attempted)
	assert.Equal(t, 4, result.Completed)
	assert.Equal(t, 1, result.Failed)

	for _, item := range result.Items {
		if item.EnrollmentID == ids[2] {
			require.NotNil(t, item.Error)
			assert.ErrorIs(t, item.Error, appErrors.ErrNotFound)
			continue
		}
		assert.True(t, item.OK())
		stored, err := f.store.FindByID(context.Background(), item.EnrollmentID)
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusCompleted, stored.Status)
	}
}

func TestScenarioFullSessionLeavesOtherEntitlementAlone(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 1, 1, baseTime.Add(time.Hour))
	f.addEntitlement("ent-x", intPtr(1), nil)
	f.addEntitlement("ent-y", intPtr(1), nil)

	_, err := f.enroll("cls-1", "p-x", "ent-x")
	require.NoError(t, err)
	assert.Equal(t, 0, *f.remaining(t, "ent-x"))

	_, err = f.enroll("cls-1", "p-y", "ent-y")
	require.ErrorIs(t, err, appErrors.ErrCapacityExceeded)
	assert.Equal(t, 0, *f.remaining(t, "ent-x"))
	assert.Equal(t, 1, *f.remaining(t, "ent-y"))
}

func TestScenarioSharedEntitlementWithOneUse(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 1, 2, baseTime.Add(time.Hour))
	f.addEntitlement("ent-1", intPtr(1), nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.enroll("cls-1", fmt.Sprintf("p-%d", i), "ent-1")
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, appErrors.ErrEntitlementExhausted)
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, 0, *f.remaining(t, "ent-1"))
}

func TestScenarioEndedSessionCancelRefunds(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 1, 2, baseTime.Add(-time.Hour))
	f.addEntitlement("ent-1", intPtr(0), nil)
	enrollment := &models.Enrollment{ClassSessionID: "cls-1", ParticipantID: "p-1", EntitlementID: "ent-1"}
	require.NoError(t, f.store.Insert(context.Background(), enrollment))

	_, err := f.attendance.SetStatus(context.Background(), SetStatusRequest{EnrollmentID: enrollment.ID, Status: models.EnrollmentStatusCompleted})
	require.ErrorIs(t, err, appErrors.ErrSessionLocked)

	require.NoError(t, f.enrollments.Cancel(context.Background(), enrollment.ID, "staff-1"))
	assert.Equal(t, 1, *f.remaining(t, "ent-1"))
	_, err = f.store.FindByID(context.Background(), enrollment.ID)
	assert.Error(t, err)
}

func TestScenarioCloseClassAtEndTime(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	end := baseTime.Add(time.Hour)
	f.addSession("cls-1", 1, 3, end)
	for i := 0; i < 3; i++ {
		f.addEntitlement(fmt.Sprintf("ent-%d", i), intPtr(5), nil)
		_, err := f.enroll("cls-1", fmt.Sprintf("p-%d", i), fmt.Sprintf("ent-%d", i))
		require.NoError(t, err)
	}

	f.now = end
	result, err := f.attendance.BatchComplete(context.Background(), "cls-1", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Completed)
	assert.Zero(t, result.Failed)

	enrolled, err := f.store.ListBySession(context.Background(), "cls-1")
	require.NoError(t, err)
	for i, e := range enrolled {
		assert.Equal(t, models.EnrollmentStatusCompleted, e.Status)
		assert.Equal(t, 4, *f.remaining(t, fmt.Sprintf("ent-%d", i)))
	}
}
