// Package ledger keeps extraction history: an append-only result log per
// competitor plus the latest success, which backs the once-per-period check.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pricehawk/pricehawk-engine/internal/models"
)

// DefaultRetention is how long entries are kept before expiring.
const DefaultRetention = 7 * 24 * time.Hour

// Ledger is the persistence collaborator the scheduler reads and feeds.
type Ledger interface {
	LastSuccess(ctx context.Context, competitorID string, since time.Time) (*models.ExtractionResult, error)
	Record(ctx context.Context, r models.ExtractionResult) error
	History(ctx context.Context, competitorID string) ([]models.ExtractionResult, error)
}

// Memory is a process-local Ledger.
type Memory struct {
	mu      sync.Mutex
	last    *cache.Cache
	history *cache.Cache
}

func NewMemory(retention time.Duration) *Memory {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Memory{
		last:    cache.New(retention, time.Hour),
		history: cache.New(retention, time.Hour),
	}
}

func (m *Memory) LastSuccess(_ context.Context, competitorID string, since time.Time) (*models.ExtractionResult, error) {
	v, ok := m.last.Get(competitorID)
	if !ok {
		return nil, nil
	}
	r := v.(models.ExtractionResult)
	if r.ScrapedAt.Before(since) {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) Record(_ context.Context, r models.ExtractionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hist []models.ExtractionResult
	if v, ok := m.history.Get(r.CompetitorID); ok {
		hist = v.([]models.ExtractionResult)
	}
	next := make([]models.ExtractionResult, len(hist), len(hist)+1)
	copy(next, hist)
	m.history.SetDefault(r.CompetitorID, append(next, r))

	if r.Status == models.StatusSuccess {
		m.last.SetDefault(r.CompetitorID, r)
	}
	return nil
}

func (m *Memory) History(_ context.Context, competitorID string) ([]models.ExtractionResult, error) {
	v, ok := m.history.Get(competitorID)
	if !ok {
		return nil, nil
	}
	hist := v.([]models.ExtractionResult)
	out := make([]models.ExtractionResult, len(hist))
	copy(out, hist)
	return out, nil
}
