package main

import (
	"context"
	"fmt"

	"github.com/tournevent/shipquote/internal/config"
	"github.com/tournevent/shipquote/internal/quote"
	"github.com/tournevent/shipquote/internal/ratetable"
	"github.com/tournevent/shipquote/internal/telemetry"
	"github.com/tournevent/shipquote/pkg/shipper"
	"github.com/tournevent/shipquote/pkg/shipper/canadapost"
	"github.com/tournevent/shipquote/pkg/shipper/freightcom"
	"github.com/tournevent/shipquote/pkg/shipper/purolator"
	"github.com/tournevent/shipquote/pkg/shipper/table"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// app holds the wired service components.
type app struct {
	cfg      *config.Config
	logger   *otelzap.Logger
	store    ratetable.Store
	registry *shipper.Registry
	engine   *quote.Engine
	closers  []func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, zap.String("service", cfg.ServiceName))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func(context.Context) error { return logger.Sync() })

	tracer, shutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		a.closers = append(a.closers, shutdown)
	}

	a.store, err = initStore(cfg)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewMetrics(nil)
	a.registry = initShipperRegistry(cfg, logger, tracer)
	a.engine, err = initEngine(cfg, a.store, a.registry, logger, metrics, tracer)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) migrate(ctx context.Context) error {
	gs, ok := a.store.(*ratetable.GormStore)
	if !ok {
		return fmt.Errorf("--migrate requires DATABASE_DSN")
	}
	return gs.Migrate(ctx)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i](context.Background())
	}
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}
	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version, cfg.Attributes()...)
}

// initStore picks the rate table source: database, then YAML file, then an
// empty in-memory table.
func initStore(cfg *config.Config) (ratetable.Store, error) {
	switch {
	case cfg.DatabaseDSN != "":
		return ratetable.OpenPostgres(cfg.DatabaseDSN)
	case cfg.RateTableFile != "":
		return ratetable.LoadFile(cfg.RateTableFile)
	default:
		return ratetable.NewMemoryStore(nil, nil), nil
	}
}

func initShipperRegistry(cfg *config.Config, logger *otelzap.Logger, tracer trace.Tracer) *shipper.Registry {
	registry := shipper.NewRegistry()

	if cfg.TableRatesEnabled {
		registry.Register(table.New(table.Config{Currency: cfg.Currency}))
	}

	if cfg.FreightcomEnabled {
		registry.Register(freightcom.New(freightcom.Config{
			APIKey:  cfg.FreightcomAPIKey,
			BaseURL: cfg.FreightcomBaseURL,
			UseMock: cfg.FreightcomUseMock,
		}, logger, tracer))
	}

	if cfg.CanadaPostEnabled {
		registry.Register(canadapost.New(canadapost.Config{
			APIKey:         cfg.CanadaPostAPIKey,
			APISecret:      cfg.CanadaPostAPISecret,
			CustomerNumber: cfg.CanadaPostCustomerNumber,
			ContractID:     cfg.CanadaPostContractID,
			BaseURL:        cfg.CanadaPostBaseURL,
			UseMock:        cfg.CanadaPostUseMock,
		}, logger, tracer))
	}

	if cfg.PurolatorEnabled {
		registry.Register(purolator.New(purolator.Config{
			Username:      cfg.PurolatorUsername,
			Password:      cfg.PurolatorPassword,
			AccountNumber: cfg.PurolatorAccountNumber,
			BaseURL:       cfg.PurolatorBaseURL,
			UseMock:       cfg.PurolatorUseMock,
		}, logger, tracer))
	}

	return registry
}

func initEngine(
	cfg *config.Config,
	store ratetable.Store,
	registry *shipper.Registry,
	logger *otelzap.Logger,
	metrics *telemetry.Metrics,
	tracer trace.Tracer,
) (*quote.Engine, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}

	aggregator := quote.NewAggregator(cfg.CombineConnector)
	dispatcher := quote.NewDispatcher(quote.DispatcherConfig{
		LimitToConfigured: cfg.LimitMethodsToConfigured,
		MaxConcurrent:     cfg.MaxConcurrentCarriers,
		WeightUnit:        shipper.WeightUnit(cfg.WeightUnit),
		Currency:          cfg.Currency,
	}, registry, cfg.Origins(), aggregator, logger, metrics, tracer)

	return quote.NewEngine(quote.Config{
		Mode:                    mode,
		ReturnValidOptionsIfAny: cfg.ReturnValidOptionsIfAny,
		FreeShippingOptionName:  cfg.FreeShippingOptionName,
	}, quote.NewPartitioner(), ratetable.NewResolver(store, logger), dispatcher, aggregator, logger, metrics), nil
}
