package costs

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-router/models"
)

// GroupBy selects the aggregation key for spend queries.
type GroupBy string

const (
	// GroupByModel groups records by "provider/model"
	GroupByModel GroupBy = "model"

	// GroupByDay groups records by UTC calendar day (YYYY-MM-DD)
	GroupByDay GroupBy = "day"
)

// ErrUnknownGroupBy is returned for an unrecognized grouping.
var ErrUnknownGroupBy = fmt.Errorf("unknown group_by")

// Aggregate is one bucket of an aggregation query.
type Aggregate struct {
	TotalCost   float64 `json:"total_cost"`
	TotalTokens int     `json:"total_tokens"`
	CallCount   int     `json:"call_count"`
}

// Tracker is the process-lifetime usage ledger. Records are append-only:
// no update or delete operations exist, and aggregation reads work on a
// snapshot that may trail the newest appends slightly.
type Tracker struct {
	mu      sync.RWMutex
	records []models.UsageRecord
	logger  *zap.Logger
}

// NewTracker creates an empty ledger.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		logger: logger,
	}
}

// Record appends one usage record. Safe under concurrent writers.
func (t *Tracker) Record(rec models.UsageRecord) {
	t.mu.Lock()
	t.records = append(t.records, rec)
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Debug("usage recorded",
			zap.String("model", rec.Model),
			zap.String("provider", string(rec.Provider)),
			zap.String("outcome", string(rec.Outcome)),
			zap.Float64("cost", rec.Cost),
			zap.Int("tokens", rec.TotalTokens()))
	}
}

// Aggregate sums spend since the given time, grouped by model or day.
func (t *Tracker) Aggregate(groupBy GroupBy, since time.Time) (map[string]Aggregate, error) {
	if groupBy != GroupByModel && groupBy != GroupByDay {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroupBy, groupBy)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Aggregate)
	for _, rec := range t.records {
		if rec.Timestamp.Before(since) {
			continue
		}

		var key string
		switch groupBy {
		case GroupByModel:
			key = fmt.Sprintf("%s/%s", rec.Provider, rec.Model)
		case GroupByDay:
			key = rec.Timestamp.UTC().Format("2006-01-02")
		}

		agg := out[key]
		agg.TotalCost += rec.Cost
		agg.TotalTokens += rec.TotalTokens()
		agg.CallCount++
		out[key] = agg
	}
	return out, nil
}

// Records returns a copy of all records at or after since.
func (t *Tracker) Records(since time.Time) []models.UsageRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.UsageRecord, 0, len(t.records))
	for _, rec := range t.records {
		if rec.Timestamp.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Len returns the total number of records.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// TotalSpend sums the cost of every record in the ledger.
func (t *Tracker) TotalSpend() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total float64
	for _, rec := range t.records {
		total += rec.Cost
	}
	return total
}
