package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/internal/repository/memory"
	appErrors "github.com/noah-isme/class-roster-api/pkg/errors"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	v := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &v
}

func strPtr(s string) *string { return &s }

func TestListConsumableOrdersByWasteRisk(t *testing.T) {
	ledger := memory.NewEntitlementStore()
	put := func(id string, remaining *int, expiry *time.Time) {
		ledger.Put(models.Entitlement{ID: id, OwnerCustomerID: "cust-1", RemainingUses: remaining, ExpiryDate: expiry})
	}
	put("no-expiry-unlimited", nil, nil)
	put("no-expiry-two", intPtr(2), nil)
	put("june-five", intPtr(5), datePtr(2026, 6, 30))
	put("april-three", intPtr(3), datePtr(2026, 4, 1))
	put("april-one", intPtr(1), datePtr(2026, 4, 1))
	put("april-unlimited", nil, datePtr(2026, 4, 1))
	put("expired", intPtr(9), datePtr(2026, 3, 9))
	put("exhausted", intPtr(0), nil)
	ledger.Put(models.Entitlement{ID: "someone-else", OwnerCustomerID: "cust-2", RemainingUses: intPtr(1)})

	clock := NewClock(func() time.Time { return baseTime }, time.UTC)
	svc := NewEntitlementService(ledger, nil, clock, nil, nil)

	ents, err := svc.ListConsumable(context.Background(), "cust-1")
	require.NoError(t, err)
	ids := make([]string, 0, len(ents))
	for _, e := range ents {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"april-one", "april-three", "april-unlimited", "june-five", "no-expiry-two", "no-expiry-unlimited"}, ids)

	_, err = svc.ListConsumable(context.Background(), " ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestConsumeUsesServiceTimeZoneForToday(t *testing.T) {
	ledger := memory.NewEntitlementStore()
	ledger.Put(models.Entitlement{ID: "ent-1", OwnerCustomerID: "cust-1", RemainingUses: intPtr(1), ExpiryDate: datePtr(2026, 3, 10)})

	jakarta := time.FixedZone("WIB", 7*60*60)
	lateEvening := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	svc := NewEntitlementService(ledger, nil, NewClock(func() time.Time { return lateEvening }, jakarta), nil, nil)

	_, err := svc.Consume(context.Background(), "ent-1")
	assert.ErrorIs(t, err, appErrors.ErrEntitlementExpired)

	svcUTC := NewEntitlementService(ledger, nil, NewClock(func() time.Time { return lateEvening }, time.UTC), nil, nil)
	_, err = svcUTC.Consume(context.Background(), "ent-1")
	assert.NoError(t, err)
}

func TestConsumeAndRefundErrors(t *testing.T) {
	f := newRosterFixture(t, baseTime)
	f.addEntitlement("ent-0", intPtr(0), datePtr(2026, 1, 1))

	_, err := f.entitlements.Consume(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = f.entitlements.Consume(context.Background(), "ent-0")
	assert.ErrorIs(t, err, appErrors.ErrEntitlementExhausted)
	_, err = f.entitlements.Refund(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	ent, err := f.entitlements.Refund(context.Background(), "ent-0")
	require.NoError(t, err)
	assert.Equal(t, 1, *ent.RemainingUses)
}

type failingTiers struct{ calls int }

func (f *failingTiers) GetTierName(context.Context, string) (string, error) {
	f.calls++
	return "", errors.New("catalog unavailable")
}

func TestSummariesCarryTierLabels(t *testing.T) {
	ledger := memory.NewEntitlementStore()
	ledger.Put(models.Entitlement{ID: "ent-1", OwnerCustomerID: "cust-1", TierID: strPtr("gold"), RemainingUses: intPtr(3)})
	ledger.Put(models.Entitlement{ID: "ent-2", OwnerCustomerID: "cust-1", TierID: strPtr("gold")})
	dir := memory.NewDirectory()
	dir.PutTier("gold", "Gold 10-pack")
	clock := NewClock(func() time.Time { return baseTime }, time.UTC)

	summaries, err := NewEntitlementService(ledger, dir, clock, nil, nil).CustomerSummaries(context.Background(), "cust-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "Gold 10-pack", summaries[0].TierName)
	assert.False(t, summaries[0].Unlimited)
	assert.True(t, summaries[1].Unlimited)
	assert.True(t, summaries[1].Consumable)

	tiers := &failingTiers{}
	byID, err := NewEntitlementService(ledger, tiers, clock, nil, nil).SummariesByID(context.Background(), []string{"ent-1", "ent-2", "ent-1", "missing"})
	require.NoError(t, err)
	assert.Len(t, byID, 2)
	assert.Empty(t, byID["ent-1"].TierName)
	assert.Equal(t, 1, tiers.calls)
}
