package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/internal/repository"
)

// RosterStore keeps class sessions and enrollments in process memory.
// Inserts and deletes are serialized per session.
type RosterStore struct {
	mu          sync.RWMutex
	sessions    map[string]models.ClassSession
	enrollments map[string]models.Enrollment
	sessionLock *keyedMutex
	seq         atomic.Int64
	now         func() time.Time
}

// NewRosterStore creates an empty store.
func NewRosterStore() *RosterStore {
	return &RosterStore{
		sessions:    make(map[string]models.ClassSession),
		enrollments: make(map[string]models.Enrollment),
		sessionLock: newKeyedMutex(),
		now:         time.Now,
	}
}

// PutSession registers or replaces a class session.
func (s *RosterStore) PutSession(session models.ClassSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

// FindSession returns a session or sql.ErrNoRows.
func (s *RosterStore) FindSession(_ context.Context, id string) (*models.ClassSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &session, nil
}

// FindByID returns an enrollment or sql.ErrNoRows.
func (s *RosterStore) FindByID(_ context.Context, id string) (*models.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enrollment, ok := s.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &enrollment, nil
}

// ListBySession returns a session's enrollments in insertion order.
func (s *RosterStore) ListBySession(_ context.Context, sessionID string) ([]models.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(sessionID), nil
}

func (s *RosterStore) listLocked(sessionID string) []models.Enrollment {
	result := []models.Enrollment{}
	for _, enrollment := range s.enrollments {
		if enrollment.ClassSessionID == sessionID {
			result = append(result, enrollment)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result
}

// ExistsParticipant checks whether the participant already holds a seat.
func (s *RosterStore) ExistsParticipant(_ context.Context, sessionID, participantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, enrollment := range s.enrollments {
		if enrollment.ClassSessionID == sessionID && enrollment.ParticipantID == participantID {
			return true, nil
		}
	}
	return false, nil
}

// Insert adds an enrollment after checking capacity and uniqueness.
func (s *RosterStore) Insert(_ context.Context, enrollment *models.Enrollment) error {
	unlock := s.sessionLock.Lock(enrollment.ClassSessionID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[enrollment.ClassSessionID]
	if !ok {
		return sql.ErrNoRows
	}
	current := s.listLocked(session.ID)
	if len(current) >= session.Capacity() {
		return repository.ErrCapacityExceeded
	}
	for _, existing := range current {
		if existing.ParticipantID == enrollment.ParticipantID {
			return repository.ErrDuplicateParticipant
		}
	}

	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = s.now().UTC()
	}
	enrollment.UpdatedAt = enrollment.CreatedAt
	enrollment.Seq = s.seq.Add(1)
	s.enrollments[enrollment.ID] = *enrollment
	return nil
}

// Delete removes an enrollment.
func (s *RosterStore) Delete(_ context.Context, id string) error {
	s.mu.RLock()
	enrollment, ok := s.enrollments[id]
	s.mu.RUnlock()
	if !ok {
		return sql.ErrNoRows
	}

	unlock := s.sessionLock.Lock(enrollment.ClassSessionID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrollments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.enrollments, id)
	return nil
}

// UpdateStatus sets the roll-call status unconditionally.
func (s *RosterStore) UpdateStatus(_ context.Context, id string, status models.EnrollmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	enrollment.Status = status
	enrollment.UpdatedAt = s.now().UTC()
	s.enrollments[id] = enrollment
	return nil
}

// CompareAndSetStatus changes the status only while it still equals expected.
func (s *RosterStore) CompareAndSetStatus(_ context.Context, id string, expected, next models.EnrollmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	if enrollment.Status != expected {
		return repository.ErrStatusConflict
	}
	enrollment.Status = next
	enrollment.UpdatedAt = s.now().UTC()
	s.enrollments[id] = enrollment
	return nil
}
