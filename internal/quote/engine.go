package quote

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/shipquote/internal/ratetable"
	"github.com/tournevent/shipquote/internal/telemetry"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// NoOptionsError is reported when a quote ends with neither options nor errors.
const NoOptionsError = "no shipping options available"

// DefaultFreeShippingOptionName names the option returned for all-free carts.
const DefaultFreeShippingOptionName = "Free shipping"

// State is a step of a quote.
type State int

const (
	StatePartitioning State = iota
	StateResolving
	StateDispatching
	StateAggregating
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePartitioning:
		return "partitioning"
	case StateResolving:
		return "resolving"
	case StateDispatching:
		return "dispatching"
	case StateAggregating:
		return "aggregating"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RecordSource provides the rate table view a quote works from.
type RecordSource interface {
	Snapshot(ctx context.Context, scope ratetable.Scope) (*ratetable.Snapshot, error)
}

// Config holds the engine policies.
type Config struct {
	Mode                    Mode
	ReturnValidOptionsIfAny bool
	FreeShippingOptionName  string
}

// Request is a cart to quote. A nil Mode uses the configured mode.
type Request struct {
	Lines       []CartLine
	Destination *Destination
	Mode        *Mode
}

// Engine runs quotes: partition, resolve, dispatch, aggregate.
type Engine struct {
	cfg         Config
	partitioner Partitioner
	records     RecordSource
	dispatcher  Dispatcher
	aggregator  *Aggregator
	logger      *otelzap.Logger
	metrics     *telemetry.Metrics
	tracer      trace.Tracer
}

// NewEngine wires the engine from its components.
func NewEngine(
	cfg Config,
	partitioner Partitioner,
	records RecordSource,
	dispatcher Dispatcher,
	aggregator *Aggregator,
	logger *otelzap.Logger,
	metrics *telemetry.Metrics,
) *Engine {
	if cfg.FreeShippingOptionName == "" {
		cfg.FreeShippingOptionName = DefaultFreeShippingOptionName
	}
	if aggregator == nil {
		aggregator = NewAggregator(DefaultConnector)
	}
	return &Engine{
		cfg:         cfg,
		partitioner: partitioner,
		records:     records,
		dispatcher:  dispatcher,
		aggregator:  aggregator,
		logger:      logger,
		metrics:     metrics,
		tracer:      otel.Tracer(tracerName),
	}
}

// Quote prices req. The returned result always carries options, errors or
// both. A Go error means the request was invalid or ctx was cancelled; no
// partial result is returned then.
func (e *Engine) Quote(ctx context.Context, req *Request) (*Result, error) {
	if err := validate(req); err != nil {
		e.metrics.RecordQuote(e.cfg.Mode.String(), "invalid", 0, 0)
		return nil, err
	}

	mode := e.cfg.Mode
	if req.Mode != nil {
		mode = *req.Mode
	}
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "quote.Engine.Quote", trace.WithAttributes(
		attribute.String("mode", mode.String()),
		attribute.Int("lines", len(req.Lines)),
	))
	defer span.End()

	result, err := e.run(ctx, span, req, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.RecordQuote(mode.String(), "cancelled", time.Since(start).Seconds(), 0)
		return nil, err
	}

	status := "ok"
	if len(result.Options) == 0 {
		status = "no_options"
	}
	e.metrics.RecordQuote(mode.String(), status, time.Since(start).Seconds(), len(result.Options))
	span.SetAttributes(
		attribute.Int("options", len(result.Options)),
		attribute.Int("errors", len(result.Errors)),
	)
	e.logger.Ctx(ctx).Info("Quote completed",
		zap.String("mode", mode.String()),
		zap.Int("options", len(result.Options)),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (e *Engine) run(ctx context.Context, span trace.Span, req *Request, mode Mode) (*Result, error) {
	logger := e.logger.Ctx(ctx)
	dest := *req.Destination

	e.enter(ctx, span, StatePartitioning)
	units := e.partitioner.Partition(req.Lines, mode)
	multiple := shipsFromMultipleLocations(units)
	if len(units) == 0 {
		e.enter(ctx, span, StateDone)
		return e.complete(&Result{}), nil
	}

	chargeable := units[:0:0]
	for _, u := range units {
		if !u.Free() {
			chargeable = append(chargeable, u)
		}
	}
	if len(chargeable) == 0 {
		e.enter(ctx, span, StateDone)
		return &Result{
			Options: []Option{{
				Name:     e.cfg.FreeShippingOptionName,
				Rate:     decimal.Zero,
				Category: CategoryOther,
			}},
			ShippedFromMultipleLocations: multiple,
		}, nil
	}

	e.enter(ctx, span, StateResolving)
	snap, err := e.records.Snapshot(ctx, dest.Scope())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Error("Failed to load rate table", zap.Error(err))
		result := &Result{Errors: []string{err.Error()}, ShippedFromMultipleLocations: multiple}
		e.enter(ctx, span, StateDone)
		return e.complete(result), nil
	}
	for i, u := range chargeable {
		records := snap.Resolve(u.Query(dest))
		if len(records) == 0 {
			logger.Debug("No rate records match unit", zap.String("unit", u.String()))
		}
		chargeable[i] = u.WithRecords(records)
	}

	sortUnits(chargeable)

	e.enter(ctx, span, StateDispatching)
	partials := make([]Result, 0, len(chargeable))
	for _, u := range chargeable {
		if len(u.Records) == 0 {
			continue
		}
		partial := e.dispatcher.Dispatch(ctx, u, dest, snap)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		partials = append(partials, partial)
	}

	e.enter(ctx, span, StateAggregating)
	combined := e.aggregator.Fold(partials)
	result := &Result{
		Options:                      combined.Options,
		Errors:                       combined.Errors,
		ShippedFromMultipleLocations: multiple || combined.ShippedFromMultipleLocations,
	}

	e.enter(ctx, span, StateDone)
	return e.complete(result), nil
}

// complete applies the completion policy and orders options by rate.
func (e *Engine) complete(result *Result) *Result {
	switch {
	case len(result.Options) > 0 && len(result.Errors) > 0 && e.cfg.ReturnValidOptionsIfAny:
		result.Errors = nil
	case len(result.Options) == 0 && len(result.Errors) == 0:
		result.Errors = []string{NoOptionsError}
	}
	sortOptions(result.Options)
	return result
}

func (e *Engine) enter(ctx context.Context, span trace.Span, s State) {
	span.AddEvent(s.String())
	e.logger.Ctx(ctx).Debug("Quote state", zap.Stringer("state", s))
}

// sortUnits orders units by their grouping key so the fold does not depend
// on cart order.
func sortUnits(units []Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].key() < units[j].key()
	})
}

func sortOptions(options []Option) {
	sort.SliceStable(options, func(i, j int) bool {
		if c := options[i].Rate.Cmp(options[j].Rate); c != 0 {
			return c < 0
		}
		if options[i].DisplayOrder != options[j].DisplayOrder {
			return options[i].DisplayOrder < options[j].DisplayOrder
		}
		return options[i].Name < options[j].Name
	})
}

func shipsFromMultipleLocations(units []Unit) bool {
	seen := make(map[int64]struct{})
	for _, u := range units {
		for _, l := range u.Items {
			seen[l.WarehouseID] = struct{}{}
		}
	}
	return len(seen) > 1
}

func validate(req *Request) error {
	switch {
	case req == nil:
		return fmt.Errorf("%w: request is nil", ErrInvalidRequest)
	case req.Lines == nil:
		return fmt.Errorf("%w: cart is nil", ErrInvalidRequest)
	case req.Destination == nil:
		return fmt.Errorf("%w: destination is nil", ErrInvalidRequest)
	}
	for _, l := range req.Lines {
		if err := l.validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	return nil
}
