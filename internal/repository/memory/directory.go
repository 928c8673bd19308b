package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/noah-isme/class-roster-api/internal/models"
)

// Directory serves participant and membership tier lookups from memory.
type Directory struct {
	mu           sync.RWMutex
	participants map[string]models.Participant
	tiers        map[string]string
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{participants: make(map[string]models.Participant), tiers: make(map[string]string)}
}

// PutParticipant registers a participant.
func (d *Directory) PutParticipant(p models.Participant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.participants[p.ID] = p
}

// PutTier registers a tier label.
func (d *Directory) PutTier(id, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tiers[id] = name
}

// Lookup searches participants by name, case-insensitively.
func (d *Directory) Lookup(_ context.Context, filter models.ParticipantFilter) ([]models.Participant, int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	matches := []models.Participant{}
	for _, p := range d.participants {
		if q == "" || strings.Contains(strings.ToLower(p.Name), q) {
			matches = append(matches, p)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Name == matches[j].Name {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Name < matches[j].Name
	})

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	total := len(matches)
	start := (page - 1) * size
	if start >= total {
		return []models.Participant{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

// FindByIDs returns the participants that exist among ids.
func (d *Directory) FindByIDs(_ context.Context, ids []string) ([]models.Participant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make([]models.Participant, 0, len(ids))
	for _, id := range ids {
		if p, ok := d.participants[id]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

// GetTierName returns a tier label or an empty string.
func (d *Directory) GetTierName(_ context.Context, tierID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tiers[tierID], nil
}
