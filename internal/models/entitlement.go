package models

import "time"

// Entitlement is a membership credit grant. A nil RemainingUses means the
// grant is not limited by count; a nil ExpiryDate means it never expires.
type Entitlement struct {
	ID              string     `db:"id" json:"id"`
	OwnerCustomerID string     `db:"owner_customer_id" json:"owner_customer_id"`
	TierID          *string    `db:"tier_id" json:"tier_id,omitempty"`
	RemainingUses   *int       `db:"remaining_uses" json:"remaining_uses"`
	ExpiryDate      *time.Time `db:"expiry_date" json:"expiry_date"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// Exhausted reports whether a count-limited grant has no uses left.
func (e Entitlement) Exhausted() bool {
	return e.RemainingUses != nil && *e.RemainingUses <= 0
}

// ExpiredOn reports whether the grant expired before the given calendar day.
func (e Entitlement) ExpiredOn(today time.Time) bool {
	if e.ExpiryDate == nil {
		return false
	}
	return CivilDate(*e.ExpiryDate).Before(CivilDate(today))
}

// ConsumableOn reports whether one use can be taken on the given day.
func (e Entitlement) ConsumableOn(today time.Time) bool {
	return !e.Exhausted() && !e.ExpiredOn(today)
}

// CivilDate truncates t to midnight UTC of its own calendar day.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EntitlementSummary is the presentation view of an entitlement.
type EntitlementSummary struct {
	ID            string     `json:"id"`
	TierID        *string    `json:"tier_id,omitempty"`
	TierName      string     `json:"tier_name,omitempty"`
	RemainingUses *int       `json:"remaining_uses"`
	Unlimited     bool       `json:"unlimited"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	Consumable    bool       `json:"consumable"`
}
