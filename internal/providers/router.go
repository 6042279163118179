package providers

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

const (
	maxTransientRetries = 3
	retryBaseDelay      = 2 * time.Second

	// DefaultRateLimitWaitThreshold is the per-phase backpressure bound from
	// §5: a worker waiting on a provider's rate limiter longer than this
	// gives up and lets the caller defer the unit of work instead.
	DefaultRateLimitWaitThreshold = 5 * time.Minute
)

// entry bundles one registered provider with its own rate limiter and
// circuit breaker.
type entry struct {
	provider Provider
	priority int
	limiter  *RateLimiter
	breaker  *CircuitBreaker
}

// Router is the Provider Router: it holds every configured provider and,
// for each capability, tries them in priority order, skipping any that are
// rate-limited or circuit-open, retrying transient failures against the
// same provider before falling back to the next one.
type Router struct {
	log                    zerolog.Logger
	entries                []*entry
	byName                 map[string]*entry
	rateLimitWaitThreshold time.Duration
}

// ProviderConfig is the rate-limit configuration for one registered
// provider; capabilities come from the Provider itself via its declared
// Capabilities(), and Priority sets the order the Router tries providers in.
type ProviderConfig struct {
	Provider      Provider
	Priority      int // lower runs first
	RatePerMinute int
	RatePerDay    int
}

// NewRouter builds a Router over the given providers, ordered by priority.
func NewRouter(log zerolog.Logger, configs []ProviderConfig) *Router {
	r := &Router{
		log:                    log.With().Str("component", "provider_router").Logger(),
		byName:                 make(map[string]*entry),
		rateLimitWaitThreshold: DefaultRateLimitWaitThreshold,
	}
	for _, c := range configs {
		e := &entry{
			provider: c.Provider,
			priority: c.Priority,
			limiter:  NewRateLimiter(c.RatePerMinute, c.RatePerDay),
			breaker:  NewCircuitBreaker(),
		}
		r.entries = append(r.entries, e)
		r.byName[c.Provider.Name()] = e
	}
	sort.Slice(r.entries, func(i, j int) bool { return r.entries[i].priority < r.entries[j].priority })
	return r
}

// SetRateLimitWaitThreshold overrides the per-phase backpressure bound
// (Config.RateLimitWaitThreshold) used by callWithRetry; NewRouter defaults
// to DefaultRateLimitWaitThreshold.
func (r *Router) SetRateLimitWaitThreshold(d time.Duration) {
	r.rateLimitWaitThreshold = d
}

// Fetch routes req to the highest-priority provider declaring req's
// capability that is neither rate-limited nor circuit-open, retrying
// transient failures against that same provider up to maxTransientRetries
// times with exponential backoff before moving to the next candidate.
func (r *Router) Fetch(ctx context.Context, req Request) (Response, string, error) {
	var lastErr error
	for _, e := range r.entries {
		if !hasCapability(e.provider.Capabilities(), req.Capability) {
			continue
		}
		if !e.breaker.Allow() {
			r.log.Debug().Str("provider", e.provider.Name()).Msg("skipping: circuit open")
			continue
		}

		resp, err := r.callWithRetry(ctx, e, req)
		if err == nil {
			e.breaker.RecordSuccess()
			return resp, e.provider.Name(), nil
		}

		lastErr = err
		pe, ok := err.(*ProviderError)
		if !ok {
			e.breaker.RecordFailure(time.Now())
			continue
		}
		switch pe.Kind {
		case KindRateExceeded:
			// Not a breaker failure: the provider is healthy, just busy.
			continue
		case KindRateLimitTimeout:
			// Not a breaker failure either: §5's backpressure rule treats a
			// stalled rate limiter as a reason to defer the work, not as
			// evidence the provider is unhealthy.
			continue
		case KindTickerUnknown:
			// Another provider may still know this symbol (the delisting
			// sweep relies on that re-probe), and this says nothing about
			// the provider's health, so keep trying the chain.
			continue
		default:
			e.breaker.RecordFailure(time.Now())
			continue
		}
	}
	if lastErr != nil {
		return Response{}, "", lastErr
	}
	return Response{}, "", &ErrNoProviderAvailable{Capability: req.Capability}
}

func (r *Router) callWithRetry(ctx context.Context, e *entry, req Request) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Response{}, ctx.Err()
			case <-timer.C:
			}
		}

		if err := e.limiter.Allow(ctx, r.rateLimitWaitThreshold); err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			if pe, ok := err.(*ProviderError); ok && pe.Kind == KindRateLimitTimeout {
				return Response{}, NewError(e.provider.Name(), KindRateLimitTimeout, err)
			}
			return Response{}, NewError(e.provider.Name(), KindRateExceeded, err)
		}

		resp, err := e.provider.Fetch(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		pe, ok := err.(*ProviderError)
		if !ok || pe.Kind != KindTransient {
			return Response{}, err
		}
		r.log.Warn().Str("provider", e.provider.Name()).Int("attempt", attempt+1).Err(err).Msg("transient provider failure, retrying")
	}
	return Response{}, lastErr
}

// RemainingBudget reports the named provider's remaining per-day call
// budget, or -1 if the provider is unknown or unlimited.
func (r *Router) RemainingBudget(provider string) int {
	e, ok := r.byName[provider]
	if !ok {
		return -1
	}
	return e.limiter.RemainingToday()
}

// MarkFailed lets a caller that performed the call itself (outside Fetch)
// report the outcome back into the circuit breaker, e.g. when a batch
// operation validates the response after the fact.
func (r *Router) MarkFailed(provider string, kind ErrorKind) {
	e, ok := r.byName[provider]
	if !ok {
		return
	}
	if kind == KindRateExceeded || kind == KindTickerUnknown || kind == KindRateLimitTimeout {
		return
	}
	e.breaker.RecordFailure(time.Now())
}

// State returns the named provider's current circuit state, for reporting.
func (r *Router) State(provider string) CircuitState {
	e, ok := r.byName[provider]
	if !ok {
		return StateClosed
	}
	return e.breaker.State()
}
