package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/internal/repository"
	appErrors "github.com/noah-isme/class-roster-api/pkg/errors"
)

const (
	outcomeOK = "ok"

	afterWriteTimeout = 5 * time.Second
)

// afterWrite returns a context for work that must follow a committed or
// rolled-back store write even when the caller has gone away.
func afterWrite(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), afterWriteTimeout)
}

type rosterStore interface {
	FindSession(ctx context.Context, id string) (*models.ClassSession, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error)
	ExistsParticipant(ctx context.Context, sessionID, participantID string) (bool, error)
	Insert(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	CompareAndSetStatus(ctx context.Context, id string, expected, next models.EnrollmentStatus) error
}

type entitlementLedger interface {
	Consume(ctx context.Context, id string) (*models.Entitlement, error)
	Refund(ctx context.Context, id string) (*models.Entitlement, error)
}

type rosterInvalidator interface {
	Invalidate(ctx context.Context, sessionID string)
}

type eventEmitter interface {
	Emit(event models.RosterEvent)
}

// RosterHooks carries the side channels notified after roster writes. Every
// field is optional.
type RosterHooks struct {
	Cache   rosterInvalidator
	Events  eventEmitter
	Metrics *MetricsService
}

func (h RosterHooks) changed(ctx context.Context, sessionID string, event models.RosterEvent) {
	if h.Cache != nil {
		ctx, cancel := afterWrite(ctx)
		defer cancel()
		h.Cache.Invalidate(ctx, sessionID)
	}
	if h.Events != nil {
		h.Events.Emit(event)
	}
}

// EnrollRequest describes an enrollment into a class session.
type EnrollRequest struct {
	SessionID     string `json:"-" validate:"required"`
	ParticipantID string `json:"participant_id" validate:"required"`
	EntitlementID string `json:"entitlement_id" validate:"required"`
	StaffID       string `json:"-"`
}

// EnrollmentService creates and cancels enrollments, consuming and refunding
// entitlement uses so that no failure path leaks a credit.
type EnrollmentService struct {
	store     rosterStore
	ledger    entitlementLedger
	clock     Clock
	hooks     RosterHooks
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(store rosterStore, ledger entitlementLedger, clock Clock, hooks RosterHooks, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{store: store, ledger: ledger, clock: clock, hooks: hooks, validator: validate, logger: logger}
}

// Enroll seats a participant in a session, paid for with one use of the
// given entitlement.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	enrollment, err := s.enroll(ctx, req)
	outcome := outcomeOK
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	s.hooks.Metrics.RecordEnrollment(outcome)
	return enrollment, err
}

func (s *EnrollmentService) enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.LockedAt(s.clock.Now()) {
		return nil, appErrors.ErrSessionLocked
	}

	exists, err := s.store.ExistsParticipant(ctx, req.SessionID, req.ParticipantID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if exists {
		return nil, appErrors.ErrAlreadyEnrolled
	}

	if _, err := s.ledger.Consume(ctx, req.EntitlementID); err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{
		ClassSessionID: req.SessionID,
		ParticipantID:  req.ParticipantID,
		EntitlementID:  req.EntitlementID,
		Status:         models.EnrollmentStatusEnrolled,
		CreatedAt:      s.clock.Now().UTC(),
	}
	if req.StaffID != "" {
		staffID := req.StaffID
		enrollment.EnrolledBy = &staffID
	}

	if err := s.store.Insert(ctx, enrollment); err != nil {
		s.compensate(ctx, req, err)
		switch {
		case errors.Is(err, repository.ErrCapacityExceeded):
			return nil, appErrors.ErrCapacityExceeded
		case errors.Is(err, repository.ErrDuplicateParticipant):
			return nil, appErrors.ErrAlreadyEnrolled
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.logger.Info("participant enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("class_session_id", enrollment.ClassSessionID),
		zap.String("participant_id", enrollment.ParticipantID),
		zap.String("entitlement_id", enrollment.EntitlementID),
		zap.String("staff_id", req.StaffID),
	)
	s.hooks.changed(ctx, enrollment.ClassSessionID, models.RosterEvent{
		Type:           models.EventEnrollmentCreated,
		ClassSessionID: enrollment.ClassSessionID,
		EnrollmentID:   enrollment.ID,
		ParticipantID:  enrollment.ParticipantID,
		EntitlementID:  enrollment.EntitlementID,
		Status:         enrollment.Status,
		StaffID:        req.StaffID,
	})
	return enrollment, nil
}

// compensate returns the use consumed by a failed enrollment.
func (s *EnrollmentService) compensate(ctx context.Context, req EnrollRequest, cause error) {
	ctx, cancel := afterWrite(ctx)
	defer cancel()
	if _, err := s.ledger.Refund(ctx, req.EntitlementID); err != nil {
		s.logger.Error("entitlement refund after failed enrollment did not apply",
			zap.String("entitlement_id", req.EntitlementID),
			zap.String("class_session_id", req.SessionID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("enrollment rejected after consumption, entitlement refunded",
		zap.String("entitlement_id", req.EntitlementID),
		zap.String("class_session_id", req.SessionID),
		zap.NamedError("cause", cause),
	)
}

// Cancel hard-deletes an enrollment and refunds its entitlement use. It is
// allowed after the session has ended.
func (s *EnrollmentService) Cancel(ctx context.Context, enrollmentID, staffID string) error {
	if enrollmentID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "enrollment id is required")
	}
	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, enrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}

	ctx, cancel := afterWrite(ctx)
	defer cancel()

	s.hooks.changed(ctx, enrollment.ClassSessionID, models.RosterEvent{
		Type:           models.EventEnrollmentCancelled,
		ClassSessionID: enrollment.ClassSessionID,
		EnrollmentID:   enrollment.ID,
		ParticipantID:  enrollment.ParticipantID,
		EntitlementID:  enrollment.EntitlementID,
		StaffID:        staffID,
	})

	if _, err := s.ledger.Refund(ctx, enrollment.EntitlementID); err != nil {
		s.logger.Error("enrollment cancelled but entitlement refund failed",
			zap.String("enrollment_id", enrollment.ID),
			zap.String("entitlement_id", enrollment.EntitlementID),
			zap.Error(err),
		)
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enrollment cancelled but entitlement refund failed")
	}

	s.logger.Info("enrollment cancelled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("class_session_id", enrollment.ClassSessionID),
		zap.String("staff_id", staffID),
	)
	return nil
}

func (s *EnrollmentService) loadSession(ctx context.Context, id string) (*models.ClassSession, error) {
	return findSession(ctx, s.store, id)
}

func (s *EnrollmentService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	return findEnrollment(ctx, s.store, id)
}

type sessionFinder interface {
	FindSession(ctx context.Context, id string) (*models.ClassSession, error)
}

func findSession(ctx context.Context, store sessionFinder, id string) (*models.ClassSession, error) {
	session, err := store.FindSession(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class session")
	}
	return session, nil
}

func findEnrollment(ctx context.Context, store rosterStore, id string) (*models.Enrollment, error) {
	enrollment, err := store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}
