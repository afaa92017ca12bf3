package quote

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tournevent/shipquote/internal/ratetable"
	"github.com/tournevent/shipquote/internal/telemetry"
	"github.com/tournevent/shipquote/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/tournevent/shipquote/internal/quote"

// RateQuoter fans rate requests out to named providers.
type RateQuoter interface {
	QuoteAll(ctx context.Context, calls []shipper.Call, limit int) []shipper.CarrierQuote
}

// CarrierLookup maps a record's carrier ID to its carrier.
type CarrierLookup interface {
	Carrier(id int64) (ratetable.Carrier, bool)
}

// Dispatcher quotes one calculation unit against the carriers named by its
// records. Failures are reported in the result, never returned.
type Dispatcher interface {
	Dispatch(ctx context.Context, unit Unit, dest Destination, carriers CarrierLookup) Result
}

// DispatcherConfig tunes CarrierDispatcher.
type DispatcherConfig struct {
	// LimitToConfigured drops carrier services no record applies to.
	LimitToConfigured bool
	// MaxConcurrent bounds simultaneous carrier calls per unit; 0 is unbounded.
	MaxConcurrent int
	WeightUnit    shipper.WeightUnit
	Currency      string
}

// CarrierDispatcher is the Dispatcher backed by a provider registry.
type CarrierDispatcher struct {
	cfg        DispatcherConfig
	quoter     RateQuoter
	origins    OriginResolver
	aggregator *Aggregator
	logger     *otelzap.Logger
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
}

// NewDispatcher creates a dispatcher. A nil tracer uses the global provider.
func NewDispatcher(
	cfg DispatcherConfig,
	quoter RateQuoter,
	origins OriginResolver,
	aggregator *Aggregator,
	logger *otelzap.Logger,
	metrics *telemetry.Metrics,
	tracer trace.Tracer,
) *CarrierDispatcher {
	if cfg.WeightUnit == "" {
		cfg.WeightUnit = shipper.WeightKG
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &CarrierDispatcher{
		cfg:        cfg,
		quoter:     quoter,
		origins:    origins,
		aggregator: aggregator,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
	}
}

// carrierPlan is one carrier to ask, with its records in specificity order.
type carrierPlan struct {
	carrier ratetable.Carrier
	records []ratetable.Record
}

// serviceNames lists the distinct method names the carrier's own records
// restrict to.
func (p carrierPlan) serviceNames() []string {
	var names []string
	seen := make(map[string]struct{})
	for _, r := range p.records {
		if r.CarrierID == 0 {
			continue
		}
		name := strings.TrimSpace(r.ShippingMethodName)
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names
}

// shipment is one package sent to a carrier; its rates are multiplied by
// multiplier.
type shipment struct {
	items      []shipper.Item
	weight     decimal.Decimal
	value      decimal.Decimal
	multiplier int
}

// Dispatch implements Dispatcher.
func (d *CarrierDispatcher) Dispatch(ctx context.Context, unit Unit, dest Destination, carriers CarrierLookup) Result {
	ctx, span := d.tracer.Start(ctx, "quote.Dispatch", trace.WithAttributes(
		attribute.String("unit", unit.String()),
		attribute.Int("records", len(unit.Records)),
	))
	defer span.End()

	var result Result
	plans, errs := planCarriers(unit, carriers)
	result.Errors = append(result.Errors, errs...)
	if len(plans) == 0 {
		return result
	}

	origin, err := d.origins.Origin(ctx, unit.WarehouseID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", unit, err))
		return result
	}

	shipments := splitShipments(unit)
	calls := make([]shipper.Call, 0, len(plans)*len(shipments))
	for _, plan := range plans {
		for _, s := range shipments {
			calls = append(calls, shipper.Call{
				Carrier: plan.carrier.RateProviderSystemName,
				Request: d.request(origin, dest, s, plan),
			})
		}
	}

	quotes := d.quoter.QuoteAll(ctx, calls, d.cfg.MaxConcurrent)

	for i, plan := range plans {
		part := quotes[i*len(shipments) : (i+1)*len(shipments)]
		result = d.aggregator.Join(result, d.collect(ctx, unit, plan, shipments, part))
	}

	span.SetAttributes(
		attribute.Int("carriers", len(plans)),
		attribute.Int("options", len(result.Options)),
		attribute.Int("errors", len(result.Errors)),
	)
	return result
}

// planCarriers groups the unit's records by carrier in discovery order.
// Records with no carrier apply to every planned carrier after its own.
func planCarriers(unit Unit, carriers CarrierLookup) ([]carrierPlan, []string) {
	var plans []carrierPlan
	var errs []string
	var anyCarrier []ratetable.Record
	index := make(map[int64]int)
	missing := make(map[int64]struct{})

	for _, rec := range unit.Records {
		if rec.CarrierID == 0 {
			anyCarrier = append(anyCarrier, rec)
			continue
		}
		if i, ok := index[rec.CarrierID]; ok {
			plans[i].records = append(plans[i].records, rec)
			continue
		}
		if _, ok := missing[rec.CarrierID]; ok {
			continue
		}
		c, ok := carriers.Carrier(rec.CarrierID)
		if !ok {
			missing[rec.CarrierID] = struct{}{}
			errs = append(errs, fmt.Sprintf("carrier %d is not configured (%s)", rec.CarrierID, unit))
			continue
		}
		index[rec.CarrierID] = len(plans)
		plans = append(plans, carrierPlan{carrier: c, records: []ratetable.Record{rec}})
	}

	if len(anyCarrier) > 0 && len(plans) == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Sprintf("no carrier is named by the rate records (%s)", unit))
	}
	for i := range plans {
		plans[i].records = append(plans[i].records, anyCarrier...)
	}
	return plans, errs
}

// splitShipments sends ship-separately lines as single-item packages whose
// rates are scaled by the line quantity, and everything else as one package.
func splitShipments(unit Unit) []shipment {
	together := shipment{weight: decimal.Zero, value: decimal.Zero, multiplier: 1}
	var separate []shipment

	for _, l := range unit.ChargeableItems() {
		if l.ShipSeparately {
			separate = append(separate, shipment{
				items:      []shipper.Item{{ProductID: l.ProductID, Quantity: 1, Weight: l.Weight, UnitPrice: l.UnitPrice}},
				weight:     l.Weight,
				value:      l.UnitPrice,
				multiplier: l.EffectiveQuantity(),
			})
			continue
		}
		together.items = append(together.items, shipper.Item{
			ProductID: l.ProductID,
			Quantity:  l.EffectiveQuantity(),
			Weight:    l.Weight,
			UnitPrice: l.UnitPrice,
		})
		together.weight = together.weight.Add(l.TotalWeight())
		together.value = together.value.Add(l.Subtotal())
	}

	if len(together.items) == 0 {
		return separate
	}
	return append([]shipment{together}, separate...)
}

func (d *CarrierDispatcher) request(origin shipper.Address, dest Destination, s shipment, plan carrierPlan) *shipper.QuoteRequest {
	return &shipper.QuoteRequest{
		Origin:      origin,
		Destination: dest.Address(),
		Packages: []shipper.Package{{
			Weight:        s.weight,
			WeightUnit:    d.cfg.WeightUnit,
			DeclaredValue: s.value,
			Currency:      d.cfg.Currency,
		}},
		Items:   append([]shipper.Item(nil), s.items...),
		Options: shipper.ShippingOptions{ServiceNames: plan.serviceNames()},
	}
}

// collect folds the package quotes of one carrier into unit-level options.
// Any failed package fails the carrier for the unit.
func (d *CarrierDispatcher) collect(ctx context.Context, unit Unit, plan carrierPlan, shipments []shipment, quotes []shipper.CarrierQuote) Result {
	logger := d.logger.Ctx(ctx)
	provider := plan.carrier.RateProviderSystemName
	label := plan.carrier.Name
	if label == "" {
		label = provider
	}

	var res, packages Result
	for i, q := range quotes {
		status := "ok"
		switch {
		case q.Err != nil:
			status = "error"
			d.metrics.RecordError(provider, shipper.ErrorCode(q.Err), shipper.IsRetryable(q.Err))
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v (%s)", label, q.Err, unit))
		case !q.Response.Success():
			status = "rejected"
			d.metrics.RecordError(provider, "REJECTED", false)
			for _, msg := range q.Response.Errors {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %s (%s)", label, msg, unit))
			}
		}
		d.metrics.RecordCarrierRequest(provider, status, q.Duration.Seconds())
		if status != "ok" {
			continue
		}
		opts := packageOptions(provider, q.Response.Rates, shipments[i].multiplier)
		packages = d.aggregator.Combine(packages, Result{Options: opts}, false)
	}

	if len(res.Errors) > 0 {
		logger.Warn("Carrier quote failed",
			zap.String("carrier", provider),
			zap.String("unit", unit.String()),
			zap.Strings("errors", res.Errors),
		)
		return res
	}

	for _, opt := range packages.Options {
		if opt.Covers != len(quotes) {
			logger.Debug("Dropping service not offered for every package",
				zap.String("carrier", provider),
				zap.String("service", opt.Name),
			)
			continue
		}
		priced, ok := d.price(plan, unit, opt)
		if !ok {
			logger.Debug("Dropping service without a configured record",
				zap.String("carrier", provider),
				zap.String("service", opt.Name),
			)
			continue
		}
		res.Options = append(res.Options, priced)
	}

	if len(packages.Options) == 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: no rates returned (%s)", label, unit))
	}
	return res
}

// price applies the first record that covers the option's service. Without
// one the quoted rate stands, unless limited to configured methods. This
// differs from ratetable.Evaluate, which prices a nil record at zero.
func (d *CarrierDispatcher) price(plan carrierPlan, unit Unit, opt Option) (Option, bool) {
	opt.Covers = 1
	for i := range plan.records {
		rec := &plan.records[i]
		if !rec.AppliesTo(opt.Name) {
			continue
		}
		rate, ok := ratetable.Evaluate(rec, opt.Rate, unit.Weight, d.cfg.LimitToConfigured)
		if !ok {
			return Option{}, false
		}
		opt.Rate = rate
		opt.DisplayOrder = rec.DisplayOrder
		if opt.TransitDays == nil && rec.TransitDays != nil {
			days := *rec.TransitDays
			opt.TransitDays = &days
		}
		return opt, true
	}
	if d.cfg.LimitToConfigured {
		return Option{}, false
	}
	return opt, true
}

// packageOptions converts carrier rates, scaled by multiplier, into options
// covering one package.
func packageOptions(provider string, rates []shipper.RateOption, multiplier int) []Option {
	m := decimal.NewFromInt(int64(multiplier))
	out := make([]Option, 0, len(rates))
	for _, r := range rates {
		name := strings.TrimSpace(r.ServiceName)
		if name == "" {
			name = r.ServiceCode
		}
		if i := indexOfService(out, name); i >= 0 {
			if r.TotalPrice.Amount.Mul(m).LessThan(out[i].Rate) {
				out[i].Rate = r.TotalPrice.Amount.Mul(m)
			}
			continue
		}
		var days *int
		if r.TransitDays != nil {
			v := *r.TransitDays
			days = &v
		}
		out = append(out, Option{
			Name:              name,
			Rate:              r.TotalPrice.Amount.Mul(m),
			TransitDays:       days,
			CarrierSystemName: provider,
			Category:          CategoryFor(r.ServiceType),
			Covers:            1,
		})
	}
	return out
}
