package memory

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/internal/repository"
)

// EntitlementStore keeps entitlements in process memory. Consume and Refund
// are linearized per entitlement id.
type EntitlementStore struct {
	mu      sync.RWMutex
	items   map[string]models.Entitlement
	perItem *keyedMutex
}

// NewEntitlementStore creates an empty store.
func NewEntitlementStore() *EntitlementStore {
	return &EntitlementStore{items: make(map[string]models.Entitlement), perItem: newKeyedMutex()}
}

// Put registers or replaces an entitlement.
func (s *EntitlementStore) Put(ent models.Entitlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[ent.ID] = copyEntitlement(ent)
}

// FindByID returns an entitlement or sql.ErrNoRows.
func (s *EntitlementStore) FindByID(_ context.Context, id string) (*models.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := copyEntitlement(ent)
	return &out, nil
}

// FindByIDs returns the entitlements that exist among ids.
func (s *EntitlementStore) FindByIDs(_ context.Context, ids []string) ([]models.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Entitlement, 0, len(ids))
	for _, id := range ids {
		if ent, ok := s.items[id]; ok {
			result = append(result, copyEntitlement(ent))
		}
	}
	return result, nil
}

// ListByOwner returns a customer's consumable entitlements on the given day.
func (s *EntitlementStore) ListByOwner(_ context.Context, customerID string, today time.Time) ([]models.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []models.Entitlement{}
	for _, ent := range s.items {
		if ent.OwnerCustomerID == customerID && ent.ConsumableOn(today) {
			result = append(result, copyEntitlement(ent))
		}
	}
	return result, nil
}

// Consume takes one use from the entitlement.
func (s *EntitlementStore) Consume(_ context.Context, id string, today time.Time) (*models.Entitlement, error) {
	unlock := s.perItem.Lock(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if ent.Exhausted() {
		return nil, repository.ErrEntitlementExhausted
	}
	if ent.ExpiredOn(today) {
		return nil, repository.ErrEntitlementExpired
	}
	if ent.RemainingUses != nil {
		left := *ent.RemainingUses - 1
		ent.RemainingUses = &left
	}
	s.items[id] = ent
	out := copyEntitlement(ent)
	return &out, nil
}

// Refund returns one use to the entitlement.
func (s *EntitlementStore) Refund(_ context.Context, id string) (*models.Entitlement, error) {
	unlock := s.perItem.Lock(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if ent.RemainingUses != nil {
		left := *ent.RemainingUses + 1
		ent.RemainingUses = &left
	}
	s.items[id] = ent
	out := copyEntitlement(ent)
	return &out, nil
}

func copyEntitlement(ent models.Entitlement) models.Entitlement {
	if ent.RemainingUses != nil {
		v := *ent.RemainingUses
		ent.RemainingUses = &v
	}
	if ent.ExpiryDate != nil {
		v := *ent.ExpiryDate
		ent.ExpiryDate = &v
	}
	if ent.TierID != nil {
		v := *ent.TierID
		ent.TierID = &v
	}
	return ent
}
