package memory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/noah-isme/class-roster-api/internal/models"
)

// Seed is the JSON fixture format accepted by LoadSeed.
type Seed struct {
	Sessions     []models.ClassSession `json:"sessions"`
	Entitlements []models.Entitlement  `json:"entitlements"`
	Participants []models.Participant  `json:"participants"`
	Tiers        map[string]string     `json:"tiers"`
}

// LoadSeed reads a fixture file and registers its contents in the stores.
func LoadSeed(path string, roster *RosterStore, ledger *EntitlementStore, dir *Directory) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed %s: %w", path, err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("decode seed %s: %w", path, err)
	}
	seed.Apply(roster, ledger, dir)
	return nil
}

// Apply registers the fixture in the stores.
func (s Seed) Apply(roster *RosterStore, ledger *EntitlementStore, dir *Directory) {
	for _, session := range s.Sessions {
		roster.PutSession(session)
	}
	for _, ent := range s.Entitlements {
		ledger.Put(ent)
	}
	for _, p := range s.Participants {
		dir.PutParticipant(p)
	}
	for id, name := range s.Tiers {
		dir.PutTier(id, name)
	}
}
