package quote_test

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/tournevent/shipquote/internal/quote"
	"github.com/tournevent/shipquote/internal/ratetable"
	"github.com/tournevent/shipquote/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nopLogger() *otelzap.Logger {
	return otelzap.New(zap.NewNop())
}

func cartLine(product, warehouse, vendor int64, qty int, weight string) quote.CartLine {
	return quote.CartLine{
		ProductID:   product,
		WarehouseID: warehouse,
		VendorID:    vendor,
		Quantity:    qty,
		Weight:      dec(weight),
		UnitPrice:   dec("10"),
	}
}

func usOrigins() quote.StaticOrigins {
	return quote.StaticOrigins{
		Default: shipper.Address{City: "Newark", PostalCode: "07102", ProvinceCode: "NJ", CountryCode: "US"},
	}
}

// harness wires a real engine over an in-memory rate table and registry.
type harness struct {
	registry *shipper.Registry
	store    *ratetable.MemoryStore
	engine   *quote.Engine
}

func newHarness(cfg quote.Config, dcfg quote.DispatcherConfig, records []ratetable.Record, carriers []ratetable.Carrier, shippers ...shipper.Shipper) *harness {
	registry := shipper.NewRegistry()
	for _, s := range shippers {
		registry.Register(s)
	}
	store := ratetable.NewMemoryStore(records, carriers)
	logger := nopLogger()
	aggregator := quote.NewAggregator(quote.DefaultConnector)
	dispatcher := quote.NewDispatcher(dcfg, registry, usOrigins(), aggregator, logger, nil, nil)
	engine := quote.NewEngine(
		cfg,
		quote.NewPartitioner(),
		ratetable.NewResolver(store, logger),
		dispatcher,
		aggregator,
		logger,
		nil,
	)
	return &harness{registry: registry, store: store, engine: engine}
}

type failingRecords struct{}

func (failingRecords) Snapshot(context.Context, ratetable.Scope) (*ratetable.Snapshot, error) {
	return nil, errors.New("rate table offline")
}

func optionNames(options []quote.Option) []string {
	names := make([]string, 0, len(options))
	for _, o := range options {
		names = append(names, o.Name)
	}
	return names
}

func findOption(options []quote.Option, name string) (quote.Option, bool) {
	for _, o := range options {
		if o.Name == name {
			return o, true
		}
	}
	return quote.Option{}, false
}
