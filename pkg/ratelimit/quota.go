package ratelimit

import "sync"

// DefaultCosts is the fixed per-operation quota cost table.
var DefaultCosts = map[string]int64{
	"list":         5,
	"get":          5,
	"delete":       10,
	"batch_delete": 50,
}

// defaultCost is charged for operations missing from the cost table.
const defaultCost int64 = 5

// QuotaTracker tracks consumption against a fixed daily quota budget.
// Usage only ever grows; the daily rollover is the caller's job.
type QuotaTracker struct {
	mu         sync.Mutex
	dailyLimit int64
	used       int64
	costs      map[string]int64
}

// QuotaStatus is a read-only snapshot of quota consumption.
type QuotaStatus struct {
	Limit           int64   `json:"limit"`
	Used            int64   `json:"used"`
	Remaining       int64   `json:"remaining"`
	UsagePercentage float64 `json:"usage_percentage"`
}

// NewQuotaTracker creates a tracker with the given daily limit. A nil cost
// table falls back to DefaultCosts.
func NewQuotaTracker(dailyLimit int64, costs map[string]int64) *QuotaTracker {
	if costs == nil {
		costs = DefaultCosts
	}
	return &QuotaTracker{
		dailyLimit: dailyLimit,
		costs:      costs,
	}
}

// Cost returns the quota cost for a single operation of the given type.
func (q *QuotaTracker) Cost(op string) int64 {
	if cost, ok := q.costs[op]; ok {
		return cost
	}
	return defaultCost
}

// CheckAvailable reports whether count operations of the given type fit in
// the remaining budget.
func (q *QuotaTracker) CheckAvailable(op string, count int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used+q.Cost(op)*count <= q.dailyLimit
}

// Consume charges count operations of the given type against the budget
// and returns the new total used.
func (q *QuotaTracker) Consume(op string, count int64) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.used += q.Cost(op) * count
	return q.used
}

// Status returns a snapshot of the quota budget.
func (q *QuotaTracker) Status() QuotaStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QuotaStatus{
		Limit:           q.dailyLimit,
		Used:            q.used,
		Remaining:       q.dailyLimit - q.used,
		UsagePercentage: float64(q.used) / float64(q.dailyLimit) * 100,
	}
}
