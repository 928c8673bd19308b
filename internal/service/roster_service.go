package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/class-roster-api/internal/models"
	appErrors "github.com/noah-isme/class-roster-api/pkg/errors"
)

// Cached views are keyed by a per-session generation. Invalidate starts a new
// generation, so a view built from reads that raced a write lands under a key
// no reader asks for.
const (
	rosterCachePrefix      = "roster:session:"
	rosterGenerationPrefix = "roster:generation:"
	rosterGenerationTTL    = 24 * time.Hour
)

type rosterReader interface {
	FindSession(ctx context.Context, id string) (*models.ClassSession, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error)
}

type participantFinder interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Participant, error)
}

type entitlementSummarizer interface {
	SummariesByID(ctx context.Context, ids []string) (map[string]models.EntitlementSummary, error)
}

type rosterCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RosterService builds the read-only seat map of a class session.
type RosterService struct {
	store        rosterReader
	participants participantFinder
	entitlements entitlementSummarizer
	cache        rosterCache
	cacheTTL     time.Duration
	clock        Clock
	logger       *zap.Logger
}

// NewRosterService constructs RosterService. cache may be nil.
func NewRosterService(store rosterReader, participants participantFinder, entitlements entitlementSummarizer, cache rosterCache, cacheTTL time.Duration, clock Clock, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		store:        store,
		participants: participants,
		entitlements: entitlements,
		cache:        cache,
		cacheTTL:     cacheTTL,
		clock:        clock,
		logger:       logger,
	}
}

func rosterCacheKey(sessionID, generation string) string {
	return rosterCachePrefix + sessionID + ":" + generation
}

func rosterGenerationKey(sessionID string) string {
	return rosterGenerationPrefix + sessionID
}

// GetRosterView returns one seat per unit of capacity. The Nth enrollment by
// creation order occupies seat N-1, filled row by row. Entitlement summaries
// are read fresh on every call and never cached.
func (s *RosterService) GetRosterView(ctx context.Context, sessionID string) (*models.RosterView, error) {
	if sessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class session id is required")
	}

	var key string
	if s.cache != nil {
		if generation := s.generation(ctx, sessionID); generation != "" {
			key = rosterCacheKey(sessionID, generation)
			var cached models.RosterView
			if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
				return s.finish(ctx, &cached), nil
			}
		}
	}

	session, err := findSession(ctx, s.store, sessionID)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	view := BuildRosterView(*session, enrollments, s.lookupParticipants(ctx, enrollments), nil)
	if key != "" {
		_ = s.cache.Set(ctx, key, view, s.cacheTTL)
	}
	return s.finish(ctx, view), nil
}

// Invalidate retires every cached view of a session.
func (s *RosterService) Invalidate(ctx context.Context, sessionID string) {
	if s == nil || s.cache == nil {
		return
	}
	key := rosterGenerationKey(sessionID)
	var previous string
	hit, _ := s.cache.Get(ctx, key, &previous)
	if err := s.cache.Set(ctx, key, uuid.NewString(), rosterGenerationTTL); err != nil {
		s.logger.Warn("roster cache invalidation failed", zap.String("class_session_id", sessionID), zap.Error(err))
		return
	}
	if hit && previous != "" {
		_ = s.cache.Delete(ctx, rosterCacheKey(sessionID, previous))
	}
}

// generation returns the session's current cache generation, recording a new
// one when none exists. An empty result means the cache must be bypassed.
func (s *RosterService) generation(ctx context.Context, sessionID string) string {
	key := rosterGenerationKey(sessionID)
	var generation string
	hit, err := s.cache.Get(ctx, key, &generation)
	if err != nil {
		return ""
	}
	if hit && generation != "" {
		return generation
	}
	generation = uuid.NewString()
	if err := s.cache.Set(ctx, key, generation, rosterGenerationTTL); err != nil {
		return ""
	}
	return generation
}

// finish applies the parts of a view that depend on the current time or on
// ledger balances.
func (s *RosterService) finish(ctx context.Context, view *models.RosterView) *models.RosterView {
	view.Locked = view.Session.LockedAt(s.clock.Now())

	enrollments := make([]models.Enrollment, 0, view.Enrolled)
	for _, seat := range view.Seats {
		if seat.Enrollment != nil {
			enrollments = append(enrollments, *seat.Enrollment)
		}
	}
	summaries := s.lookupEntitlements(ctx, enrollments)
	for i := range view.Seats {
		seat := &view.Seats[i]
		seat.Entitlement = nil
		if seat.Enrollment == nil {
			continue
		}
		if summary, ok := summaries[seat.Enrollment.EntitlementID]; ok {
			summary := summary
			seat.Entitlement = &summary
		}
	}
	return view
}

// BuildRosterView lays enrollments onto the session's seat grid.
func BuildRosterView(session models.ClassSession, enrollments []models.Enrollment, participants map[string]models.Participant, entitlements map[string]models.EntitlementSummary) *models.RosterView {
	capacity := session.Capacity()
	view := &models.RosterView{
		Session:  session,
		Capacity: capacity,
		Enrolled: len(enrollments),
		Seats:    make([]models.SeatView, capacity),
	}
	for i := 0; i < capacity; i++ {
		row, col := session.SeatPosition(i)
		seat := models.SeatView{Index: i, Row: row, Column: col, State: models.SeatEmpty}
		if i < len(enrollments) {
			enrollment := enrollments[i]
			seat.State = models.SeatOccupied
			seat.Enrollment = &enrollment
			if p, ok := participants[enrollment.ParticipantID]; ok {
				seat.Participant = &p
			} else {
				seat.Participant = &models.Participant{ID: enrollment.ParticipantID}
			}
			if summary, ok := entitlements[enrollment.EntitlementID]; ok {
				seat.Entitlement = &summary
			}
		}
		view.Seats[i] = seat
	}
	return view
}

func (s *RosterService) lookupParticipants(ctx context.Context, enrollments []models.Enrollment) map[string]models.Participant {
	result := map[string]models.Participant{}
	if s.participants == nil || len(enrollments) == 0 {
		return result
	}
	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.ParticipantID)
	}
	found, err := s.participants.FindByIDs(ctx, uniqueStrings(ids))
	if err != nil {
		s.logger.Warn("participant lookup failed, roster shows ids only", zap.Error(err))
		return result
	}
	for _, p := range found {
		result[p.ID] = p
	}
	return result
}

func (s *RosterService) lookupEntitlements(ctx context.Context, enrollments []models.Enrollment) map[string]models.EntitlementSummary {
	if s.entitlements == nil || len(enrollments) == 0 {
		return map[string]models.EntitlementSummary{}
	}
	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.EntitlementID)
	}
	summaries, err := s.entitlements.SummariesByID(ctx, ids)
	if err != nil {
		s.logger.Warn("entitlement summary lookup failed", zap.Error(err))
		return map[string]models.EntitlementSummary{}
	}
	return summaries
}
