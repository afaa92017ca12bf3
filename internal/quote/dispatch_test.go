package quote_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipquote/internal/quote"
	"github.com/tournevent/shipquote/internal/ratetable"
	"github.com/tournevent/shipquote/internal/telemetry"
	"github.com/tournevent/shipquote/pkg/shipper"
	"github.com/tournevent/shipquote/pkg/shipper/mock"
	"github.com/tournevent/shipquote/pkg/shipper/table"
)

var testCarriers = []ratetable.Carrier{
	{ID: 1, Name: "Table Rates", RateProviderSystemName: table.SystemName},
	{ID: 2, Name: "Alpha", RateProviderSystemName: "alpha"},
	{ID: 3, Name: "Beta", RateProviderSystemName: "beta"},
}

func snapshotOf(t *testing.T, carriers []ratetable.Carrier) *ratetable.Snapshot {
	t.Helper()
	r := ratetable.NewResolver(ratetable.NewMemoryStore(nil, carriers), nopLogger())
	snap, err := r.Snapshot(context.Background(), ratetable.Scope{})
	require.NoError(t, err)
	return snap
}

func unitOf(lines []quote.CartLine, records ...ratetable.Record) quote.Unit {
	units := quote.NewPartitioner().Partition(lines, quote.ModeByProduct)
	return units[0].WithRecords(records)
}

func newTestDispatcher(cfg quote.DispatcherConfig, metrics *telemetry.Metrics, shippers ...shipper.Shipper) *quote.CarrierDispatcher {
	registry := shipper.NewRegistry()
	for _, s := range shippers {
		registry.Register(s)
	}
	return quote.NewDispatcher(cfg, registry, usOrigins(), quote.NewAggregator(""), nopLogger(), metrics, nil)
}

func TestDispatch_AppliesRecordFormula(t *testing.T) {
	d := newTestDispatcher(quote.DispatcherConfig{}, nil,
		table.New(table.Config{}),
		mock.New("alpha").WithRate("Ground", shipper.ServiceStandard, "10", 4),
	)
	unit := unitOf(
		[]quote.CartLine{cartLine(1, 1, 1, 1, "1"), cartLine(2, 1, 1, 2, "1")},
		ratetable.Record{ID: 1, CarrierID: 1, ShippingMethodName: "Flat", AdditionalFixedCost: dec("5"), RatePerWeightUnit: dec("2"), LowerWeightLimit: dec("1")},
		ratetable.Record{ID: 2, CarrierID: 2, AdditionalFixedCost: dec("5"), RatePerWeightUnit: dec("2"), LowerWeightLimit: dec("1"), DisplayOrder: 3},
	)

	got := d.Dispatch(context.Background(), unit, quote.Destination{Zip: "90210"}, snapshotOf(t, testCarriers))
	assert.Empty(t, got.Errors)

	flat, ok := findOption(got.Options, "Flat")
	require.True(t, ok)
	assert.True(t, flat.Rate.Equal(dec("9")), "rate %s", flat.Rate)
	assert.Equal(t, table.SystemName, flat.CarrierSystemName)

	ground, ok := findOption(got.Options, "Ground")
	require.True(t, ok)
	assert.True(t, ground.Rate.Equal(dec("19")), "rate %s", ground.Rate)
	assert.Equal(t, 3, ground.DisplayOrder)
	assert.Equal(t, 1, ground.Covers)
}

func TestDispatch_ShipSeparatelyMultipliesByQuantity(t *testing.T) {
	alpha := mock.New("alpha").WithRate("Ground", shipper.ServiceStandard, "4", 3)
	d := newTestDispatcher(quote.DispatcherConfig{}, nil, alpha)

	separate := cartLine(2, 1, 1, 3, "2")
	separate.ShipSeparately = true
	unit := unitOf(
		[]quote.CartLine{cartLine(1, 1, 1, 1, "1"), separate},
		ratetable.Record{ID: 1, CarrierID: 2},
	)

	got := d.Dispatch(context.Background(), unit, quote.Destination{}, snapshotOf(t, testCarriers))
	require.Len(t, got.Options, 1)
	// 4 for the shared package plus 4 x 3 for the separate item.
	assert.True(t, got.Options[0].Rate.Equal(dec("16")), "rate %s", got.Options[0].Rate)

	reqs := alpha.Requests()
	require.Len(t, reqs, 2)
	var single *shipper.QuoteRequest
	for _, r := range reqs {
		if r.Items[0].ProductID == 2 {
			single = r
		}
	}
	require.NotNil(t, single)
	assert.Equal(t, 1, single.Items[0].Quantity)
	assert.True(t, single.Packages[0].Weight.Equal(dec("2")))
}

func TestDispatch_DropsServicesMissingFromAPackage(t *testing.T) {
	alpha := mock.New("alpha")
	alpha.OnGetQuote = func(_ context.Context, req *shipper.QuoteRequest) (*shipper.QuoteResponse, error) {
		resp := &shipper.QuoteResponse{Rates: []shipper.RateOption{
			{ServiceName: "Ground", ServiceType: shipper.ServiceStandard, TotalPrice: shipper.Money{Amount: dec("5")}},
		}}
		if req.Items[0].ProductID == 1 {
			resp.Rates = append(resp.Rates, shipper.RateOption{
				ServiceName: "Air", ServiceType: shipper.ServiceExpress, TotalPrice: shipper.Money{Amount: dec("12")},
			})
		}
		return resp, nil
	}
	d := newTestDispatcher(quote.DispatcherConfig{}, nil, alpha)

	separate := cartLine(2, 1, 1, 1, "2")
	separate.ShipSeparately = true
	unit := unitOf([]quote.CartLine{cartLine(1, 1, 1, 1, "1"), separate}, ratetable.Record{CarrierID: 2})

	got := d.Dispatch(context.Background(), unit, quote.Destination{}, snapshotOf(t, testCarriers))
	assert.Equal(t, []string{"Ground"}, optionNames(got.Options))
	assert.True(t, got.Options[0].Rate.Equal(dec("10")))
}

func TestDispatch_CarrierFailureIsIsolated(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	d := newTestDispatcher(quote.DispatcherConfig{}, metrics,
		mock.New("alpha").WithError(shipper.ErrServiceUnavailable),
		mock.New("beta").WithRate("Ground", shipper.ServiceStandard, "7", 2),
	)
	unit := unitOf(
		[]quote.CartLine{cartLine(1, 1, 1, 1, "1")},
		ratetable.Record{ID: 1, CarrierID: 2},
		ratetable.Record{ID: 2, CarrierID: 3},
	)

	got := d.Dispatch(context.Background(), unit, quote.Destination{}, snapshotOf(t, testCarriers))
	assert.Equal(t, []string{"Ground"}, optionNames(got.Options))
	require.Len(t, got.Errors, 1)
	assert.Contains(t, got.Errors[0], "Alpha")
	assert.Contains(t, got.Errors[0], "(cart)")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CarrierErrors.WithLabelValues("alpha", "SERVICE_UNAVAILABLE", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CarrierRequests.WithLabelValues("beta", "ok")))
}

func TestDispatch_RejectedQuote(t *testing.T) {
	d := newTestDispatcher(quote.DispatcherConfig{}, nil,
		mock.New("alpha").WithRejection("postal code not serviced"),
	)
	unit := unitOf([]quote.CartLine{cartLine(1, 1, 1, 1, "1")}, ratetable.Record{CarrierID: 2})

	got := d.Dispatch(context.Background(), unit, quote.Destination{}, snapshotOf(t, testCarriers))
	assert.Empty(t, got.Options)
	assert.Equal(t, []string{"Alpha: postal code not serviced (cart)"}, got.Errors)
}

func TestDispatch_UnregisteredProvider(t *testing.T) {
	d := newTestDispatcher(quote.DispatcherConfig{}, nil)
	unit := unitOf([]quote.CartLine{cartLine(1, 1, 1, 1, "1")}, ratetable.Record{CarrierID: 2})

	got := d.Dispatch(context.Background(), unit, quote.Destination{}, snapshotOf(t, testCarriers))
	assert.Empty(t, got.Options)
	require.Len(t, got.Errors, 1)
	assert.Contains(t, got.Errors[0], "carrier not found")
}

func TestDispatch_UnknownCarrierID(t *testing.T) {
	d := newTestDispatcher(quote.DispatcherConfig{}, nil)
	unit := unitOf([]quote.CartLine{cartLine(1, 1, 1, 1, "1")}, ratetable.Record{CarrierID: 9}, ratetable.Record{CarrierID: 9})

	got := d.Dispatch(context.Background(), unit, quote.Destination{}, snapshotOf(t, testCarriers))
	assert.Equal(t, []string{"carrier 9 is not configured (cart)"}, got.Errors)
}

func TestDispatch_AnyCarrierRecordAppliesAfterCarrierRecords(t *testing.T) {
	alpha := mock.New("alpha").
		WithRate("Ground", shipper.ServiceStandard, "10", 4).
		WithRate("Air", shipper.ServiceExpress, "12", 1)
	d := newTestDispatcher(quote.DispatcherConfig{}, nil, alpha)
	unit := unitOf([]quote.CartLine{cartLine(1, 1, 1, 1, "1")},
		ratetable.Record{ID: 1, CarrierID: 2, ShippingMethodName: "Air", AdditionalFixedCost: dec("1")},
		ratetable.Record{ID: 2, AdditionalFixedCost: dec("3")},
	)

	got := d.Dispatch(context.Background(), unit, quote.Destination{}, snapshotOf(t, testCarriers))
	assert.Empty(t, got.Errors)

	ground, ok := findOption(got.Options, "Ground")
	require.True(t, ok)
	assert.True(t, ground.Rate.Equal(dec("13")), "rate %s", ground.Rate)
	air, ok := findOption(got.Options, "Air")
	require.True(t, ok)
	assert.True(t, air.Rate.Equal(dec("13")), "rate %s", air.Rate)

	reqs := alpha.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"Air"}, reqs[0].Options.ServiceNames)
}

func TestDispatch_AnyCarrierRecordAloneNamesNoCarrier(t *testing.T) {
	alpha := mock.New("alpha")
	d := newTestDispatcher(quote.DispatcherConfig{}, nil, alpha)
	unit := unitOf([]quote.CartLine{cartLine(1, 1, 1, 1, "1")}, ratetable.Record{AdditionalFixedCost: dec("3")})

	got := d.Dispatch(context.Background(), unit, quote.Destination{}, snapshotOf(t, testCarriers))
	assert.Empty(t, got.Options)
	assert.Equal(t, []string{"no carrier is named by the rate records (cart)"}, got.Errors)
	assert.Empty(t, alpha.Requests())
}

func TestDispatch_LimitToConfiguredMethods(t *testing.T) {
	newAlpha := func() *mock.Client {
		return mock.New("alpha").
			WithRate("Ground", shipper.ServiceStandard, "5", 5).
			WithRate("Express", shipper.ServiceExpress, "15", 1)
	}
	unit := unitOf(
		[]quote.CartLine{cartLine(1, 1, 1, 1, "1")},
		ratetable.Record{CarrierID: 2, ShippingMethodName: "Express", AdditionalFixedCost: dec("1")},
	)

	limited := newTestDispatcher(quote.DispatcherConfig{LimitToConfigured: true}, nil, newAlpha())
	got := limited.Dispatch(context.Background(), unit, quote.Destination{}, snapshotOf(t, testCarriers))
	assert.Equal(t, []string{"Express"}, optionNames(got.Options))
	assert.True(t, got.Options[0].Rate.Equal(dec("16")))

	open := newTestDispatcher(quote.DispatcherConfig{}, nil, newAlpha())
	got = open.Dispatch(context.Background(), unit, quote.Destination{}, snapshotOf(t, testCarriers))
	assert.ElementsMatch(t, []string{"Ground", "Express"}, optionNames(got.Options))
	ground, _ := findOption(got.Options, "Ground")
	assert.True(t, ground.Rate.Equal(dec("5")), "unconfigured service keeps the carrier rate")
}

func TestDispatch_PassesServiceNamesAndAddresses(t *testing.T) {
	alpha := mock.New("alpha")
	d := newTestDispatcher(quote.DispatcherConfig{WeightUnit: shipper.WeightLB, Currency: "CAD"}, nil, alpha)
	unit := unitOf(
		[]quote.CartLine{cartLine(1, 1, 1, 2, "1.5")},
		ratetable.Record{CarrierID: 2, ShippingMethodName: "Express"},
		ratetable.Record{CarrierID: 2, ShippingMethodName: "express"},
		ratetable.Record{CarrierID: 2, ShippingMethodName: "Standard"},
	)
	dest := quote.Destination{Zip: "V6B2W2", CountryCode: "CA", ProvinceCode: "BC", City: "Vancouver"}

	d.Dispatch(context.Background(), unit, dest, snapshotOf(t, testCarriers))

	reqs := alpha.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"Express", "Standard"}, reqs[0].Options.ServiceNames)
	assert.Equal(t, "US", reqs[0].Origin.CountryCode)
	assert.Equal(t, "V6B2W2", reqs[0].Destination.PostalCode)
	assert.Equal(t, shipper.WeightLB, reqs[0].Packages[0].WeightUnit)
	assert.Equal(t, "CAD", reqs[0].Packages[0].Currency)
	assert.True(t, reqs[0].Packages[0].Weight.Equal(dec("3")))
	assert.True(t, reqs[0].Packages[0].DeclaredValue.Equal(dec("20")))
}

func TestDispatch_TransitDaysFromRecord(t *testing.T) {
	alpha := mock.New("alpha")
	alpha.OnGetQuote = func(context.Context, *shipper.QuoteRequest) (*shipper.QuoteResponse, error) {
		return &shipper.QuoteResponse{Rates: []shipper.RateOption{
			{ServiceName: "Ground", TotalPrice: shipper.Money{Amount: dec("5")}},
		}}, nil
	}
	d := newTestDispatcher(quote.DispatcherConfig{}, nil, alpha)
	unit := unitOf([]quote.CartLine{cartLine(1, 1, 1, 1, "1")}, ratetable.Record{CarrierID: 2, TransitDays: days(6)})

	got := d.Dispatch(context.Background(), unit, quote.Destination{}, snapshotOf(t, testCarriers))
	require.Len(t, got.Options, 1)
	require.NotNil(t, got.Options[0].TransitDays)
	assert.Equal(t, 6, *got.Options[0].TransitDays)
}

func TestDispatch_EmptyRateList(t *testing.T) {
	alpha := mock.New("alpha")
	alpha.OnGetQuote = func(context.Context, *shipper.QuoteRequest) (*shipper.QuoteResponse, error) {
		return &shipper.QuoteResponse{}, nil
	}
	d := newTestDispatcher(quote.DispatcherConfig{}, nil, alpha)
	unit := unitOf([]quote.CartLine{cartLine(1, 1, 1, 1, "1")}, ratetable.Record{CarrierID: 2})

	got := d.Dispatch(context.Background(), unit, quote.Destination{}, snapshotOf(t, testCarriers))
	assert.Empty(t, got.Options)
	assert.Equal(t, []string{"Alpha: no rates returned (cart)"}, got.Errors)
}

func TestDispatch_MissingOrigin(t *testing.T) {
	registry := shipper.NewRegistry()
	registry.Register(mock.New("alpha"))
	d := quote.NewDispatcher(quote.DispatcherConfig{}, registry, quote.StaticOrigins{}, quote.NewAggregator(""), nopLogger(), nil, nil)
	unit := unitOf([]quote.CartLine{cartLine(1, 4, 1, 1, "1")}, ratetable.Record{CarrierID: 2})

	got := d.Dispatch(context.Background(), unit, quote.Destination{}, snapshotOf(t, testCarriers))
	assert.Empty(t, got.Options)
	require.Len(t, got.Errors, 1)
	assert.Contains(t, got.Errors[0], "no origin address configured")
}

func TestStaticOrigins(t *testing.T) {
	origins := quote.StaticOrigins{
		Default:    shipper.Address{CountryCode: "US", PostalCode: "07102"},
		Warehouses: map[int64]shipper.Address{2: {CountryCode: "CA", PostalCode: "M5V1A1"}},
	}

	addr, err := origins.Origin(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "CA", addr.CountryCode)

	addr, err = origins.Origin(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "07102", addr.PostalCode)

	_, err = quote.StaticOrigins{}.Origin(context.Background(), 1)
	assert.True(t, errors.Is(err, quote.ErrUnknownOrigin))
}
