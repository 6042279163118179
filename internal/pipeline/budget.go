package pipeline

import (
	"fmt"
	"time"

	"github.com/aristath/marketpipe/internal/store"
)

// pipelineEndpoint is the api_usage_tracking endpoint key the orchestrator
// records its own phase-level call counts under, distinct from whatever
// endpoint labels a concrete Provider implementation might use internally.
const pipelineEndpoint = "orchestrator"

// BudgetTracker enforces §4.7's shared daily API-call budget: a single cap
// spanning every configured provider, independent of each provider's own
// per-minute/per-day rate limiter (which the Provider Router already
// enforces in-memory). It persists consumption in ApiUsage so the cap
// survives a process restart mid-run.
type BudgetTracker struct {
	usage       *store.ApiUsageRepository
	providers   []string
	dailyBudget int
	reservePct  float64
}

// NewBudgetTracker builds a BudgetTracker. providerNames should list every
// provider name configured in the Router, since Consumed sums across all of
// them.
func NewBudgetTracker(usage *store.ApiUsageRepository, providerNames []string, dailyBudget int, reservePct float64) *BudgetTracker {
	return &BudgetTracker{usage: usage, providers: providerNames, dailyBudget: dailyBudget, reservePct: reservePct}
}

// Consumed sums calls recorded today across every tracked provider.
func (b *BudgetTracker) Consumed(date time.Time) (int, error) {
	total := 0
	for _, p := range b.providers {
		n, err := b.usage.TotalCallsToday(p, date)
		if err != nil {
			return 0, fmt.Errorf("failed to sum calls for %s: %w", p, err)
		}
		total += n
	}
	return total, nil
}

// Remaining returns the full remaining daily budget (no reserve withheld).
func (b *BudgetTracker) Remaining(date time.Time) (int, error) {
	consumed, err := b.Consumed(date)
	if err != nil {
		return 0, err
	}
	remaining := b.dailyBudget - consumed
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// RemainingExcludingReserve is Remaining minus the reserve floor held back
// for Phase 5's history backfill; Phase 3 consults this, not Remaining, so
// it can never eat into the backfill allocation. Phase 1 does not consult
// the budget before fetching.
func (b *BudgetTracker) RemainingExcludingReserve(date time.Time) (int, error) {
	remaining, err := b.Remaining(date)
	if err != nil {
		return 0, err
	}
	reserve := int(float64(b.dailyBudget) * b.reservePct)
	available := remaining - reserve
	if available < 0 {
		return 0, nil
	}
	return available, nil
}

// Reserve returns the portion of the daily budget held back for Phase 5,
// reported separately from Remaining since Phase 5 is allowed to spend down
// into it.
func (b *BudgetTracker) Reserve(date time.Time) (int, error) {
	remaining, err := b.Remaining(date)
	if err != nil {
		return 0, err
	}
	reserve := int(float64(b.dailyBudget) * b.reservePct)
	if remaining < reserve {
		return remaining, nil
	}
	return reserve, nil
}

// Record charges n calls against provider's ledger for today, creating the
// ledger row first if needed. The row's calls_limit is set to the full
// daily budget the first time a provider is charged today; per-provider
// limits finer than the shared budget are a Router-level (rate limiter)
// concern, not this ledger's.
func (b *BudgetTracker) Record(provider string, date time.Time, n int) error {
	if err := b.usage.EnsureRow(provider, date, pipelineEndpoint, b.dailyBudget); err != nil {
		return err
	}
	_, err := b.usage.RecordCalls(provider, date, pipelineEndpoint, n)
	return err
}
