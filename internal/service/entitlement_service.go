package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/internal/repository"
	appErrors "github.com/noah-isme/class-roster-api/pkg/errors"
)

type entitlementRepository interface {
	FindByID(ctx context.Context, id string) (*models.Entitlement, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Entitlement, error)
	ListByOwner(ctx context.Context, customerID string, today time.Time) ([]models.Entitlement, error)
	Consume(ctx context.Context, id string, today time.Time) (*models.Entitlement, error)
	Refund(ctx context.Context, id string) (*models.Entitlement, error)
}

type tierCatalog interface {
	GetTierName(ctx context.Context, tierID string) (string, error)
}

// EntitlementService is the entitlement ledger: balance queries and atomic
// consume/refund of membership credits.
type EntitlementService struct {
	repo    entitlementRepository
	tiers   tierCatalog
	clock   Clock
	metrics *MetricsService
	logger  *zap.Logger
}

// NewEntitlementService constructs EntitlementService. tiers may be nil, in
// which case summaries carry no tier label.
func NewEntitlementService(repo entitlementRepository, tiers tierCatalog, clock Clock, metrics *MetricsService, logger *zap.Logger) *EntitlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntitlementService{repo: repo, tiers: tiers, clock: clock, metrics: metrics, logger: logger}
}

// ListConsumable returns the customer's consumable entitlements, the one at
// highest risk of going unused first.
func (s *EntitlementService) ListConsumable(ctx context.Context, customerID string) ([]models.Entitlement, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "customer id is required")
	}
	today := s.clock.Today()
	owned, err := s.repo.ListByOwner(ctx, customerID, today)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list entitlements")
	}

	consumable := make([]models.Entitlement, 0, len(owned))
	for _, ent := range owned {
		if ent.ConsumableOn(today) {
			consumable = append(consumable, ent)
		}
	}
	SortByWasteRisk(consumable)
	return consumable, nil
}

// SortByWasteRisk orders entitlements soonest expiry first, then fewest
// remaining uses. Missing expiry or count sorts last; ids break ties.
func SortByWasteRisk(ents []models.Entitlement) {
	sort.SliceStable(ents, func(i, j int) bool {
		a, b := ents[i], ents[j]
		if c := compareOptionalDate(a.ExpiryDate, b.ExpiryDate); c != 0 {
			return c < 0
		}
		if c := compareOptionalInt(a.RemainingUses, b.RemainingUses); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
}

func compareOptionalDate(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	da, db := models.CivilDate(*a), models.CivilDate(*b)
	switch {
	case da.Before(db):
		return -1
	case da.After(db):
		return 1
	}
	return 0
}

func compareOptionalInt(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

// Get returns a single entitlement.
func (s *EntitlementService) Get(ctx context.Context, id string) (*models.Entitlement, error) {
	ent, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "entitlement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entitlement")
	}
	return ent, nil
}

// Consume takes one use of the entitlement for today.
func (s *EntitlementService) Consume(ctx context.Context, id string) (*models.Entitlement, error) {
	ent, err := s.repo.Consume(ctx, id, s.clock.Today())
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "entitlement not found")
		case errors.Is(err, repository.ErrEntitlementExhausted):
			return nil, appErrors.ErrEntitlementExhausted
		case errors.Is(err, repository.ErrEntitlementExpired):
			return nil, appErrors.ErrEntitlementExpired
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume entitlement")
	}
	return ent, nil
}

// Refund returns one use to the entitlement.
func (s *EntitlementService) Refund(ctx context.Context, id string) (*models.Entitlement, error) {
	ent, err := s.repo.Refund(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "entitlement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refund entitlement")
	}
	s.metrics.RecordRefund()
	return ent, nil
}

// CustomerSummaries lists the customer's consumable entitlements with tier labels.
func (s *EntitlementService) CustomerSummaries(ctx context.Context, customerID string) ([]models.EntitlementSummary, error) {
	ents, err := s.ListConsumable(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, ents), nil
}

// SummariesByID builds presentation summaries for the given entitlement ids.
// Unknown ids are omitted.
func (s *EntitlementService) SummariesByID(ctx context.Context, ids []string) (map[string]models.EntitlementSummary, error) {
	ents, err := s.repo.FindByIDs(ctx, uniqueStrings(ids))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entitlements")
	}
	summaries := s.summarize(ctx, ents)
	result := make(map[string]models.EntitlementSummary, len(summaries))
	for _, summary := range summaries {
		result[summary.ID] = summary
	}
	return result, nil
}

func (s *EntitlementService) summarize(ctx context.Context, ents []models.Entitlement) []models.EntitlementSummary {
	today := s.clock.Today()
	names := map[string]string{}
	summaries := make([]models.EntitlementSummary, 0, len(ents))
	for _, ent := range ents {
		summary := models.EntitlementSummary{
			ID:            ent.ID,
			TierID:        ent.TierID,
			RemainingUses: ent.RemainingUses,
			Unlimited:     ent.RemainingUses == nil,
			ExpiryDate:    ent.ExpiryDate,
			Consumable:    ent.ConsumableOn(today),
		}
		if ent.TierID != nil && s.tiers != nil {
			name, ok := names[*ent.TierID]
			if !ok {
				var err error
				name, err = s.tiers.GetTierName(ctx, *ent.TierID)
				if err != nil {
					s.logger.Warn("tier lookup failed", zap.String("tier_id", *ent.TierID), zap.Error(err))
				}
				names[*ent.TierID] = name
			}
			summary.TierName = name
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
