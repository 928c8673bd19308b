package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/internal/repository"
	appErrors "github.com/noah-isme/class-roster-api/pkg/errors"
)

const defaultBatchConcurrency = 8

// SetStatusRequest describes a roll-call update.
type SetStatusRequest struct {
	EnrollmentID string                  `json:"-"`
	Status       models.EnrollmentStatus `json:"status"`
	StaffID      string                  `json:"-"`
}

// BatchItemResult is the outcome for one enrollment of a close-class batch.
type BatchItemResult struct {
	EnrollmentID  string                  `json:"enrollment_id"`
	ParticipantID string                  `json:"participant_id"`
	Status        models.EnrollmentStatus `json:"status,omitempty"`
	Error         *appErrors.Error        `json:"error,omitempty"`
}

// OK reports whether the item was completed.
func (r BatchItemResult) OK() bool { return r.Error == nil }

// BatchResult reports every attempted enrollment of a close-class batch.
type BatchResult struct {
	ClassSessionID string            `json:"class_session_id"`
	Attempted      int               `json:"attempted"`
	Completed      int               `json:"completed"`
	Failed         int               `json:"failed"`
	Items          []BatchItemResult `json:"items"`
}

// AttendanceService drives the roll-call state machine.
type AttendanceService struct {
	store       rosterStore
	clock       Clock
	hooks       RosterHooks
	concurrency int
	logger      *zap.Logger
}

// NewAttendanceService constructs AttendanceService. concurrency bounds the
// parallel updates of BatchComplete.
func NewAttendanceService(store rosterStore, clock Clock, hooks RosterHooks, concurrency int, logger *zap.Logger) *AttendanceService {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{store: store, clock: clock, hooks: hooks, concurrency: concurrency, logger: logger}
}

// SetStatus records a roll-call outcome for one enrollment. It never touches
// the entitlement that paid for the seat.
func (s *AttendanceService) SetStatus(ctx context.Context, req SetStatusRequest) (*models.Enrollment, error) {
	enrollment, err := s.setStatus(ctx, req)
	outcome := outcomeOK
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	label := string(req.Status)
	if !req.Status.Valid() {
		label = "INVALID"
	}
	s.hooks.Metrics.RecordAttendanceUpdate(label, outcome)
	return enrollment, err
}

func (s *AttendanceService) setStatus(ctx context.Context, req SetStatusRequest) (*models.Enrollment, error) {
	if req.EnrollmentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment id is required")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported attendance status")
	}

	enrollment, err := findEnrollment(ctx, s.store, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	session, err := findSession(ctx, s.store, enrollment.ClassSessionID)
	if err != nil {
		return nil, err
	}
	if session.LockedAt(s.clock.Now()) {
		return nil, appErrors.ErrSessionLocked
	}
	if !models.CanTransition(enrollment.Status, req.Status) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "attendance transition not allowed")
	}
	if enrollment.Status == req.Status {
		return enrollment, nil
	}

	if err := s.store.UpdateStatus(ctx, enrollment.ID, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
	}
	previous := enrollment.Status
	enrollment.Status = req.Status
	enrollment.UpdatedAt = s.clock.Now().UTC()

	s.logger.Info("attendance updated",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(req.Status)),
		zap.String("staff_id", req.StaffID),
	)
	s.hooks.changed(ctx, enrollment.ClassSessionID, models.RosterEvent{
		Type:           models.EventAttendanceUpdated,
		ClassSessionID: enrollment.ClassSessionID,
		EnrollmentID:   enrollment.ID,
		ParticipantID:  enrollment.ParticipantID,
		Status:         enrollment.Status,
		StaffID:        req.StaffID,
	})
	return enrollment, nil
}

// BatchComplete marks every still-enrolled participant of the session as
// completed. Items are attempted independently; a failed item is reported in
// the result and never stops the others. The lock is checked once up front.
func (s *AttendanceService) BatchComplete(ctx context.Context, sessionID, staffID string) (*BatchResult, error) {
	if sessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class session id is required")
	}
	session, err := findSession(ctx, s.store, sessionID)
	if err != nil {
		return nil, err
	}
	if session.LockedAt(s.clock.Now()) {
		return nil, appErrors.ErrSessionLocked
	}

	enrollments, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	pending := make([]models.Enrollment, 0, len(enrollments))
	for _, enrollment := range enrollments {
		if enrollment.Status == models.EnrollmentStatusEnrolled {
			pending = append(pending, enrollment)
		}
	}

	start := time.Now()
	items := make([]BatchItemResult, len(pending))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range pending {
		i, enrollment := i, pending[i]
		g.Go(func() error {
			items[i] = s.completeOne(ctx, enrollment)
			return nil
		})
	}
	_ = g.Wait()
	s.hooks.Metrics.ObserveBatchComplete(time.Since(start))

	result := &BatchResult{ClassSessionID: sessionID, Attempted: len(items), Items: items}
	for _, item := range items {
		if item.OK() {
			result.Completed++
			continue
		}
		result.Failed++
		s.logger.Warn("close-class item failed",
			zap.String("class_session_id", sessionID),
			zap.String("enrollment_id", item.EnrollmentID),
			zap.String("code", item.Error.Code),
		)
	}

	s.logger.Info("class closed",
		zap.String("class_session_id", sessionID),
		zap.Int("attempted", result.Attempted),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
		zap.String("staff_id", staffID),
	)
	s.hooks.changed(ctx, sessionID, models.RosterEvent{
		Type:           models.EventSessionClosed,
		ClassSessionID: sessionID,
		StaffID:        staffID,
		Completed:      result.Completed,
	})
	return result, nil
}

func (s *AttendanceService) completeOne(ctx context.Context, enrollment models.Enrollment) BatchItemResult {
	item := BatchItemResult{EnrollmentID: enrollment.ID, ParticipantID: enrollment.ParticipantID}
	err := s.store.CompareAndSetStatus(ctx, enrollment.ID, models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted)
	switch {
	case err == nil:
		item.Status = models.EnrollmentStatusCompleted
	case errors.Is(err, sql.ErrNoRows):
		item.Error = appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	case errors.Is(err, repository.ErrStatusConflict):
		item.Error = appErrors.Clone(appErrors.ErrConflict, "enrollment status changed concurrently")
	default:
		item.Error = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete enrollment")
	}
	outcome := outcomeOK
	if item.Error != nil {
		outcome = item.Error.Code
	}
	s.hooks.Metrics.RecordAttendanceUpdate(string(models.EnrollmentStatusCompleted), outcome)
	return item
}
