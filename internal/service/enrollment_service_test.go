package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/internal/repository/memory"
	appErrors "github.com/noah-isme/class-roster-api/pkg/errors"
)

type stubLedger struct {
	consumeErr error
	refundErr  error
	consumed   []string
	refunded   []string
}

func (s *stubLedger) Consume(_ context.Context, id string) (*models.Entitlement, error) {
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	s.consumed = append(s.consumed, id)
	return &models.Entitlement{ID: id}, nil
}

func (s *stubLedger) Refund(_ context.Context, id string) (*models.Entitlement, error) {
	s.refunded = append(s.refunded, id)
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	return &models.Entitlement{ID: id}, nil
}

type recordingHooks struct {
	mu          sync.Mutex
	invalidated []string
	events      []models.RosterEvent
}

func (r *recordingHooks) Invalidate(_ context.Context, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, sessionID)
}

func (r *recordingHooks) Emit(event models.RosterEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestEnrollValidatesPayload(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	_, err := f.enrollments.Enroll(context.Background(), EnrollRequest{SessionID: "cls-1", ParticipantID: "p-1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestEnrollUnknownSession(t *testing.T) {
	ledger := &stubLedger{}
	f := newRosterFixture(t, baseTime)
	svc := NewEnrollmentService(f.store, ledger, NewClock(func() time.Time { return baseTime }, nil), RosterHooks{}, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{SessionID: "nope", ParticipantID: "p-1", EntitlementID: "ent-1"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, ledger.consumed)
}

func TestEnrollDuplicateCheckedBeforeConsume(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 2, 2, baseTime.Add(time.Hour))
	ledger := &stubLedger{}
	svc := NewEnrollmentService(f.store, ledger, NewClock(func() time.Time { return baseTime }, nil), RosterHooks{}, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{SessionID: "cls-1", ParticipantID: "p-1", EntitlementID: "ent-1"})
	require.NoError(t, err)
	_, err = svc.Enroll(context.Background(), EnrollRequest{SessionID: "cls-1", ParticipantID: "p-1", EntitlementID: "ent-2"})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyEnrolled)
	assert.Equal(t, []string{"ent-1"}, ledger.consumed)
	assert.Empty(t, ledger.refunded)
}

func TestEnrollPropagatesEntitlementError(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 2, 2, baseTime.Add(time.Hour))
	ledger := &stubLedger{consumeErr: appErrors.ErrEntitlementExpired}
	svc := NewEnrollmentService(f.store, ledger, NewClock(func() time.Time { return baseTime }, nil), RosterHooks{}, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{SessionID: "cls-1", ParticipantID: "p-1", EntitlementID: "ent-1"})
	assert.ErrorIs(t, err, appErrors.ErrEntitlementExpired)
	enrolled, _ := f.store.ListBySession(context.Background(), "cls-1")
	assert.Empty(t, enrolled)
}

func TestEnrollNotifiesHooksAndRecordsStaff(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 2, 2, baseTime.Add(time.Hour))
	hooks := &recordingHooks{}
	svc := NewEnrollmentService(f.store, &stubLedger{}, NewClock(func() time.Time { return baseTime }, nil), RosterHooks{Cache: hooks, Events: hooks}, nil, nil)

	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{SessionID: "cls-1", ParticipantID: "p-1", EntitlementID: "ent-1", StaffID: "staff-9"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.NotNil(t, enrollment.EnrolledBy)
	assert.Equal(t, "staff-9", *enrollment.EnrolledBy)
	assert.Equal(t, []string{"cls-1"}, hooks.invalidated)
	require.Len(t, hooks.events, 1)
	assert.Equal(t, models.EventEnrollmentCreated, hooks.events[0].Type)
}

func TestCancelUnknownEnrollment(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	err := f.enrollments.Cancel(context.Background(), "missing", "staff-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCancelReportsRefundFailureAfterDelete(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 1, 1, baseTime.Add(time.Hour))
	enrollment := &models.Enrollment{ClassSessionID: "cls-1", ParticipantID: "p-1", EntitlementID: "ent-1"}
	require.NoError(t, f.store.Insert(context.Background(), enrollment))

	ledger := &stubLedger{refundErr: errors.New("ledger offline")}
	svc := NewEnrollmentService(f.store, ledger, NewClock(func() time.Time { return baseTime }, nil), RosterHooks{}, nil, nil)

	err := svc.Cancel(context.Background(), enrollment.ID, "staff-1")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, []string{"ent-1"}, ledger.refunded)
	_, findErr := f.store.FindByID(context.Background(), enrollment.ID)
	assert.Error(t, findErr)
}

// contextLedger fails on a done context before touching balances, as a
// database/sql backed ledger does.
type contextLedger struct {
	inner entitlementLedger
}

func (l contextLedger) Consume(ctx context.Context, id string) (*models.Entitlement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.inner.Consume(ctx, id)
}

func (l contextLedger) Refund(ctx context.Context, id string) (*models.Entitlement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.inner.Refund(ctx, id)
}

// abandoningStore simulates the caller disconnecting during a write.
type abandoningStore struct {
	*memory.RosterStore
	cancel         context.CancelFunc
	failInsert     bool
	cancelOnDelete bool
}

func (s *abandoningStore) Insert(ctx context.Context, enrollment *models.Enrollment) error {
	if s.failInsert {
		s.cancel()
		return ctx.Err()
	}
	return s.RosterStore.Insert(ctx, enrollment)
}

func (s *abandoningStore) Delete(ctx context.Context, id string) error {
	err := s.RosterStore.Delete(ctx, id)
	if s.cancelOnDelete {
		s.cancel()
	}
	return err
}

func TestEnrollRefundsWhenCallerDisconnectsDuringInsert(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 2, 2, baseTime.Add(time.Hour))
	f.addEntitlement("ent-1", intPtr(3), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &abandoningStore{RosterStore: f.store, cancel: cancel, failInsert: true}
	hooks := &recordingHooks{}
	svc := NewEnrollmentService(store, contextLedger{inner: f.entitlements}, NewClock(func() time.Time { return baseTime }, nil), RosterHooks{Cache: hooks}, nil, nil)

	_, err := svc.Enroll(ctx, EnrollRequest{SessionID: "cls-1", ParticipantID: "p-1", EntitlementID: "ent-1"})
	require.Error(t, err)

	enrolled, _ := f.store.ListBySession(context.Background(), "cls-1")
	assert.Empty(t, enrolled)
	assert.Equal(t, 3, *f.remaining(t, "ent-1"))
}

func TestCancelRefundsWhenCallerDisconnectsAfterDelete(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addSession("cls-1", 2, 2, baseTime.Add(time.Hour))
	f.addEntitlement("ent-1", intPtr(3), nil)
	enrollment, err := f.enroll("cls-1", "p-1", "ent-1")
	require.NoError(t, err)
	require.Equal(t, 2, *f.remaining(t, "ent-1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &abandoningStore{RosterStore: f.store, cancel: cancel, cancelOnDelete: true}
	hooks := &recordingHooks{}
	svc := NewEnrollmentService(store, contextLedger{inner: f.entitlements}, NewClock(func() time.Time { return baseTime }, nil), RosterHooks{Cache: hooks}, nil, nil)

	require.NoError(t, svc.Cancel(ctx, enrollment.ID, "staff-1"))
	assert.Equal(t, 3, *f.remaining(t, "ent-1"))
	assert.Equal(t, []string{"cls-1"}, hooks.invalidated)
}
