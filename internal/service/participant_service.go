package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/class-roster-api/internal/models"
	appErrors "github.com/noah-isme/class-roster-api/pkg/errors"
)

type participantDirectory interface {
	Lookup(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, int, error)
}

// ParticipantService searches the participant directory.
type ParticipantService struct {
	repo   participantDirectory
	logger *zap.Logger
}

// NewParticipantService constructs ParticipantService.
func NewParticipantService(repo participantDirectory, logger *zap.Logger) *ParticipantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParticipantService{repo: repo, logger: logger}
}

// Lookup returns participants matching the name query with pagination metadata.
func (s *ParticipantService) Lookup(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	participants, total, err := s.repo.Lookup(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search participants")
	}
	return participants, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}
