package shipper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Registry manages registered rate providers keyed by system name.
type Registry struct {
	shippers map[string]Shipper
	mu       sync.RWMutex
}

// NewRegistry creates a new shipper registry.
func NewRegistry() *Registry {
	return &Registry{
		shippers: make(map[string]Shipper),
	}
}

// Register adds a shipper to the registry, replacing any provider with the same name.
func (r *Registry) Register(s Shipper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shippers[s.Name()] = s
}

// Get returns a shipper by system name.
func (r *Registry) Get(name string) (Shipper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.shippers[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrCarrierNotFound, name)
}

// Names returns the sorted names of all registered shippers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.shippers))
	for name := range r.shippers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered shippers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shippers)
}

// Call is one quote request addressed to a named provider.
type Call struct {
	Carrier string
	Request *QuoteRequest
}

// CarrierQuote pairs a provider name with the outcome of one GetQuote call.
type CarrierQuote struct {
	Carrier  string
	Response *QuoteResponse
	Err      error
	Duration time.Duration
}

// QuoteAll issues calls concurrently. The result has one entry per call in the
// same order; a failing provider never cancels the others. At most limit calls
// run at once when limit is positive.
func (r *Registry) QuoteAll(ctx context.Context, calls []Call, limit int) []CarrierQuote {
	results := make([]CarrierQuote, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i].Carrier = call.Carrier
			s, err := r.Get(call.Carrier)
			if err != nil {
				results[i].Err = err
				return nil
			}
			start := time.Now()
			resp, err := s.GetQuote(gctx, call.Request)
			results[i].Duration = time.Since(start)
			if err == nil && resp == nil {
				err = NewShipperError(call.Carrier, "EMPTY_RESPONSE", "provider returned no response")
			}
			results[i].Response = resp
			results[i].Err = err
			return nil // Don't fail the group, continue with other carriers
		})
	}

	_ = g.Wait()
	return results
}
