package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/internal/repository/memory"
)

func intPtr(v int) *int { return &v }

type rosterFixture struct {
	now          time.Time
	store        *memory.RosterStore
	ledger       *memory.EntitlementStore
	dir          *memory.Directory
	metrics      *MetricsService
	entitlements *EntitlementService
	enrollments  *EnrollmentService
	attendance   *AttendanceService
	roster       *RosterService
}

func newRosterFixture(t *testing.T, now time.Time) *rosterFixture {
	t.Helper()
	f := &rosterFixture{
		now:     now,
		store:   memory.NewRosterStore(),
		ledger:  memory.NewEntitlementStore(),
		dir:     memory.NewDirectory(),
		metrics: NewMetricsService(),
	}
	clock := NewClock(func() time.Time { return f.now }, time.UTC)
	f.entitlements = NewEntitlementService(f.ledger, f.dir, clock, f.metrics, nil)
	f.roster = NewRosterService(f.store, f.dir, f.entitlements, nil, 0, clock, nil)
	hooks := RosterHooks{Cache: f.roster, Metrics: f.metrics}
	f.enrollments = NewEnrollmentService(f.store, f.entitlements, clock, hooks, nil, nil)
	f.attendance = NewAttendanceService(f.store, clock, hooks, 4, nil)
	return f
}

func (f *rosterFixture) addSession(id string, rows, cols int, end time.Time) {
	f.store.PutSession(models.ClassSession{ID: id, Rows: rows, Columns: cols, StartTime: end.Add(-time.Hour), EndTime: end})
}

func (f *rosterFixture) addEntitlement(id string, remaining *int, expiry *time.Time) {
	f.ledger.Put(models.Entitlement{ID: id, OwnerCustomerID: "cust-1", RemainingUses: remaining, ExpiryDate: expiry})
}

func (f *rosterFixture) remaining(t *testing.T, id string) *int {
	t.Helper()
	ent, err := f.ledger.FindByID(context.Background(), id)
	require.NoError(t, err)
	return ent.RemainingUses
}

func (f *rosterFixture) enroll(sessionID, participantID, entitlementID string) (*models.Enrollment, error) {
	return f.enrollments.Enroll(context.Background(), EnrollRequest{
		SessionID:     sessionID,
		ParticipantID: participantID,
		EntitlementID: entitlementID,
		StaffID:       "staff-1",
	})
}
