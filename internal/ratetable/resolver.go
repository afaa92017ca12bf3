package ratetable

import (
	"context"
	"fmt"
	"sort"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Resolver selects the rate records that apply to a shipment.
type Resolver struct {
	store  Store
	logger *otelzap.Logger
}

// NewResolver creates a resolver over store.
func NewResolver(store Store, logger *otelzap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve returns every record matching q, most specific first. An empty
// result is normal; an error means the store could not be read.
func (r *Resolver) Resolve(ctx context.Context, q Query) ([]Record, error) {
	records, err := r.store.Records(ctx, q.Scope)
	if err != nil {
		return nil, fmt.Errorf("loading rate records: %w", err)
	}
	return Select(records, q), nil
}

// Snapshot reads the records for the destination part of scope and every
// carrier once, so a single quote works from one consistent view.
func (r *Resolver) Snapshot(ctx context.Context, scope Scope) (*Snapshot, error) {
	records, err := r.store.Records(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("loading rate records: %w", err)
	}
	carriers, err := r.store.Carriers(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading carriers: %w", err)
	}

	snap := &Snapshot{
		records:  records,
		carriers: make(map[int64]Carrier, len(carriers)),
	}
	for _, c := range carriers {
		snap.carriers[c.ID] = c
	}

	r.logger.Ctx(ctx).Debug("Loaded rate table snapshot",
		zap.Int("records", len(records)),
		zap.Int("carriers", len(carriers)),
	)
	return snap, nil
}

// Snapshot is an immutable view of the rate table for one quote.
type Snapshot struct {
	records  []Record
	carriers map[int64]Carrier
}

// Resolve returns the snapshot records matching q, most specific first.
func (s *Snapshot) Resolve(q Query) []Record {
	return Select(s.records, q)
}

// Carrier looks up a carrier by ID.
func (s *Snapshot) Carrier(id int64) (Carrier, bool) {
	c, ok := s.carriers[id]
	return c, ok
}

// Select filters records by q and orders them by specificity, then display
// order, then ID. The input slice is not modified.
func Select(records []Record, q Query) []Record {
	matched := make([]Record, 0, len(records))
	for i := range records {
		if records[i].Matches(q) {
			matched = append(matched, records[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		si, sj := matched[i].specificity(), matched[j].specificity()
		if si != sj {
			return si > sj
		}
		if matched[i].DisplayOrder != matched[j].DisplayOrder {
			return matched[i].DisplayOrder < matched[j].DisplayOrder
		}
		return matched[i].ID < matched[j].ID
	})
	return matched
}
