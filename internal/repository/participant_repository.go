package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/class-roster-api/internal/models"
)

const participantColumns = `id, name, owner_customer_id`

// ParticipantRepository reads the participant directory.
type ParticipantRepository struct {
	db *sqlx.DB
}

// NewParticipantRepository constructs the repository.
func NewParticipantRepository(db *sqlx.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Lookup searches participants by name, case-insensitively.
func (r *ParticipantRepository) Lookup(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, int, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	where := ""
	args := []interface{}{}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where = " WHERE name ILIKE $1"
		args = append(args, "%"+q+"%")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM participants`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count participants: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM participants%s ORDER BY name ASC, id ASC LIMIT %d OFFSET %d`,
		participantColumns, where, size, (page-1)*size)
	participants := []models.Participant{}
	if err := r.db.SelectContext(ctx, &participants, query, args...); err != nil {
		return nil, 0, fmt.Errorf("lookup participants: %w", err)
	}
	return participants, total, nil
}

// FindByIDs returns the participants that exist among ids.
func (r *ParticipantRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Participant, error) {
	if len(ids) == 0 {
		return []models.Participant{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+participantColumns+` FROM participants WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build participant lookup: %w", err)
	}
	participants := []models.Participant{}
	if err := r.db.SelectContext(ctx, &participants, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find participants: %w", err)
	}
	return participants, nil
}
