package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-roster-api/internal/models"
)

func TestParticipantRepositoryLookup(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM participants WHERE name ILIKE $1")).
		WithArgs("%ana%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM participants WHERE name ILIKE $1 ORDER BY name ASC, id ASC LIMIT 20 OFFSET 0")).
		WithArgs("%ana%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner_customer_id"}).AddRow("p-1", "Ana", "cust-1"))

	participants, total, err := repo.Lookup(context.Background(), models.ParticipantFilter{Query: " ana "})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, participants, 1)
	assert.Equal(t, "cust-1", participants[0].OwnerCustomerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTierRepositoryUnknownTier(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTierRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM membership_tiers WHERE id = $1")).
		WithArgs("tier-x").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	name, err := repo.GetTierName(context.Background(), "tier-x")
	require.NoError(t, err)
	assert.Empty(t, name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepositoryFindByIDsUsesPostgresPlaceholders(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM participants WHERE id IN ($1, $2, $3)")).
		WithArgs("p-1", "p-2", "p-3").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner_customer_id"}).
			AddRow("p-1", "Ana", "cust-1").
			AddRow("p-3", "Budi", "cust-2"))

	participants, err := repo.FindByIDs(context.Background(), []string{"p-1", "p-2", "p-3"})
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "p-3", participants[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
