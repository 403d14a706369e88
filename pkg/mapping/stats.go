package mapping

import (
	"sync"
	"sync/atomic"

	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

// Budget is the run-global failure budget. Every failed generation attempt
// charges it, across all source databases and workers; once spent, the run
// stops accepting new work. A nil or unlimited budget never exhausts.
type Budget struct {
	remaining atomic.Int64
	unlimited bool
}

// NewBudget creates a budget of limit failures. A non-positive limit means
// unlimited.
func NewBudget(limit int) *Budget {
	b := &Budget{unlimited: limit <= 0}
	if !b.unlimited {
		b.remaining.Store(int64(limit))
	}
	return b
}

// Charge records one failure. It returns false once the budget is spent;
// the charging failure itself is still counted.
func (b *Budget) Charge() bool {
	if b == nil || b.unlimited {
		return true
	}
	return b.remaining.Add(-1) > 0
}

// Exhausted reports whether the budget has been spent.
func (b *Budget) Exhausted() bool {
	if b == nil || b.unlimited {
		return false
	}
	return b.remaining.Load() <= 0
}

// Tracker accumulates run statistics at three levels: overall, per source
// database, and a list of prompts that never produced a usable response.
// Safe for concurrent use by the worker pool.
type Tracker struct {
	mu      sync.Mutex
	overall models.RunStats
	perDB   map[string]*models.RunStats
	skipped []SkippedPrompt
}

// SkippedPrompt identifies a batch whose questions were abandoned after
// the retry ceiling or the failure budget ran out.
type SkippedPrompt struct {
	SourceDBID string   `json:"source_db_id"`
	BatchIndex int      `json:"batch_index"`
	Questions  []string `json:"questions"`
	Reason     string   `json:"reason"`
}

func NewTracker() *Tracker {
	return &Tracker{perDB: make(map[string]*models.RunStats)}
}

// Add merges a stats delta into the overall and per-db counters.
func (t *Tracker) Add(sourceDBID string, delta models.RunStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.overall.Merge(delta)
	db, ok := t.perDB[sourceDBID]
	if !ok {
		db = &models.RunStats{}
		t.perDB[sourceDBID] = db
	}
	db.Merge(delta)
}

// Skip records a batch that was given up on.
func (t *Tracker) Skip(s SkippedPrompt) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipped = append(t.skipped, s)
}

// MarkIncomplete flags the run as stopped short with the given reason.
func (t *Tracker) MarkIncomplete(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.overall.Incomplete {
		t.overall.Incomplete = true
		t.overall.StopReason = reason
	}
}

// Overall returns a copy of the run-level stats.
func (t *Tracker) Overall() models.RunStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overall
}

// PerDB returns a copy of the per-source-db stats map.
func (t *Tracker) PerDB() map[string]models.RunStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]models.RunStats, len(t.perDB))
	for k, v := range t.perDB {
		out[k] = *v
	}
	return out
}

// Skipped returns a copy of the abandoned-prompt list.
func (t *Tracker) Skipped() []SkippedPrompt {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SkippedPrompt, len(t.skipped))
	copy(out, t.skipped)
	return out
}
