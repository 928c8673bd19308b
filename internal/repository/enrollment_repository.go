package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/pkg/database"
)

const (
	enrollmentColumns = `id, class_session_id, participant_id, entitlement_id, status, enrolled_by, seq, created_at, updated_at`
	uniqueViolation   = "23505"
)

// EnrollmentRepository handles persistence of session enrollments.
type EnrollmentRepository struct {
	db       *sqlx.DB
	sessions *ClassSessionRepository
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, sessions: NewClassSessionRepository(db)}
}

// FindSession returns the class session the roster belongs to.
func (r *EnrollmentRepository) FindSession(ctx context.Context, id string) (*models.ClassSession, error) {
	return r.sessions.FindByID(ctx, id)
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListBySession returns a session's enrollments in creation order.
func (r *EnrollmentRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE class_session_id = $1 ORDER BY seq ASC`
	enrollments := []models.Enrollment{}
	if err := r.db.SelectContext(ctx, &enrollments, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session enrollments: %w", err)
	}
	return enrollments, nil
}

// ExistsParticipant checks whether the participant already holds a seat.
func (r *EnrollmentRepository) ExistsParticipant(ctx context.Context, sessionID, participantID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE class_session_id = $1 AND participant_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, sessionID, participantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check participant enrollment: %w", err)
	}
	return true, nil
}

// Insert persists a new enrollment. The session row is locked for the
// duration of the capacity and duplicate checks so concurrent inserts into the
// same session are serialized.
func (r *EnrollmentRepository) Insert(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = enrollment.CreatedAt
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var capacity int
		const lockQuery = `SELECT seat_rows * seat_columns FROM class_sessions WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &capacity, lockQuery, enrollment.ClassSessionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock class session: %w", err)
		}

		var taken int
		const countQuery = `SELECT COUNT(*) FROM enrollments WHERE class_session_id = $1`
		if err := tx.GetContext(ctx, &taken, countQuery, enrollment.ClassSessionID); err != nil {
			return fmt.Errorf("count session enrollments: %w", err)
		}
		if taken >= capacity {
			return ErrCapacityExceeded
		}

		const insertQuery = `INSERT INTO enrollments (id, class_session_id, participant_id, entitlement_id, status, enrolled_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING seq`
		err := tx.QueryRowxContext(ctx, insertQuery,
			enrollment.ID, enrollment.ClassSessionID, enrollment.ParticipantID, enrollment.EntitlementID,
			enrollment.Status, enrollment.EnrolledBy, enrollment.CreatedAt, enrollment.UpdatedAt,
		).Scan(&enrollment.Seq)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return ErrDuplicateParticipant
			}
			return fmt.Errorf("insert enrollment: %w", err)
		}
		return nil
	})
}

// Delete hard-deletes an enrollment.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return expectOneRow(result, "delete enrollment")
}

// UpdateStatus sets the roll-call status unconditionally.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return expectOneRow(result, "update enrollment status")
}

// CompareAndSetStatus changes the status only while it still equals expected.
func (r *EnrollmentRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, expected, next, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check enrollment status rows: %w", err)
	}
	if rows == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return ErrStatusConflict
}

func expectOneRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
