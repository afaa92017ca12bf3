package quote_test

import (
	"context"
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

func TestEngine_SimpleCartUsesRecordFormula(t *testing.T) {
	h := newHarness(quote.Config{}, quote.DispatcherConfig{},
		[]ratetable.Record{{
			ID: 1, CarrierID: 1, Zip: "90210", ShippingMethodName: "Ground",
			AdditionalFixedCost: dec("5"), RatePerWeightUnit: dec("2"), LowerWeightLimit: dec("1"),
		}},
		testCarriers,
		table.New(table.Config{}),
	)

	res, err := h.engine.Quote(context.Background(), &quote.Request{
		Lines:       []quote.CartLine{cartLine(1, 1, 1, 1, "1"), cartLine(2, 1, 1, 1, "2")},
		Destination: &quote.Destination{Zip: "90210"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Options, 1)
	assert.Equal(t, "Ground", res.Options[0].Name)
	assert.True(t, res.Options[0].Rate.Equal(dec("9")), "rate %s", res.Options[0].Rate)
	assert.False(t, res.ShippedFromMultipleLocations)
}

func TestEngine_FormulaAddsCarrierRate(t *testing.T) {
	h := newHarness(quote.Config{}, quote.DispatcherConfig{},
		[]ratetable.Record{{
			CarrierID: 2, AdditionalFixedCost: dec("5"), RatePerWeightUnit: dec("2"), LowerWeightLimit: dec("1"),
		}},
		testCarriers,
		mock.New("alpha").WithRate("Ground", shipper.ServiceStandard, "12.40", 3),
	)

	res, err := h.engine.Quote(context.Background(), &quote.Request{
		Lines:       []quote.CartLine{cartLine(1, 1, 1, 3, "1")},
		Destination: &quote.Destination{Zip: "90210"},
	})
	require.NoError(t, err)
	require.Len(t, res.Options, 1)
	assert.True(t, res.Options[0].Rate.Equal(dec("21.40")), "rate %s", res.Options[0].Rate)
}

func TestEngine_ByWarehouseSumsSameService(t *testing.T) {
	h := newHarness(quote.Config{Mode: quote.ModeByWarehouse}, quote.DispatcherConfig{},
		[]ratetable.Record{{CarrierID: 2}},
		testCarriers,
		mock.New("alpha").WithRate("Express", shipper.ServiceExpress, "11.25", 2),
	)

	res, err := h.engine.Quote(context.Background(), &quote.Request{
		Lines:       []quote.CartLine{cartLine(1, 1, 1, 1, "1"), cartLine(2, 2, 1, 1, "1")},
		Destination: &quote.Destination{},
	})
	require.NoError(t, err)
	require.Len(t, res.Options, 1)
	assert.Equal(t, "Express", res.Options[0].Name)
	assert.True(t, res.Options[0].Rate.Equal(dec("22.50")))
	assert.True(t, res.ShippedFromMultipleLocations)
}

func s4Harness(returnValid bool) *harness {
	return newHarness(quote.Config{ReturnValidOptionsIfAny: returnValid}, quote.DispatcherConfig{},
		[]ratetable.Record{
			{ID: 1, WarehouseID: 1, CarrierID: 3},
			{ID: 2, WarehouseID: 2, CarrierID: 2},
		},
		testCarriers,
		mock.New("alpha").WithRate("Ground", shipper.ServiceStandard, "8", 4),
		mock.New("beta").WithError(shipper.ErrServiceUnavailable),
	)
}

func s4Request() *quote.Request {
	return &quote.Request{
		Lines:       []quote.CartLine{cartLine(1, 1, 1, 1, "1"), cartLine(2, 2, 1, 1, "1")},
		Destination: &quote.Destination{},
	}
}

func TestEngine_CarrierFailureWithValidOptions(t *testing.T) {
	res, err := s4Harness(true).engine.Quote(context.Background(), s4Request())
	require.NoError(t, err)
	assert.Equal(t, []string{"Ground"}, optionNames(res.Options))
	assert.Empty(t, res.Errors)
}

func TestEngine_CarrierFailureKeepsErrorsByDefault(t *testing.T) {
	res, err := s4Harness(false).engine.Quote(context.Background(), s4Request())
	require.NoError(t, err)
	assert.Equal(t, []string{"Ground"}, optionNames(res.Options))
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Beta")
	assert.Contains(t, res.Errors[0], "product 1")
}

func TestEngine_DropsOptionsNotCoveringEveryUnit(t *testing.T) {
	alpha := mock.New("alpha")
	alpha.OnGetQuote = func(_ context.Context, req *shipper.QuoteRequest) (*shipper.QuoteResponse, error) {
		resp := &shipper.QuoteResponse{Rates: []shipper.RateOption{
			{ServiceName: "Ground", ServiceType: shipper.ServiceStandard, TotalPrice: shipper.Money{Amount: dec("5")}},
		}}
		if req.Items[0].ProductID == 1 {
			resp.Rates = append(resp.Rates, shipper.RateOption{
				ServiceName: "Air", ServiceType: shipper.ServiceExpress, TotalPrice: shipper.Money{Amount: dec("20")},
			})
		}
		return resp, nil
	}
	h := newHarness(quote.Config{Mode: quote.ModeByWarehouse}, quote.DispatcherConfig{},
		[]ratetable.Record{{CarrierID: 2}}, testCarriers, alpha)

	res, err := h.engine.Quote(context.Background(), &quote.Request{
		Lines:       []quote.CartLine{cartLine(1, 1, 1, 1, "1"), cartLine(2, 2, 1, 1, "1")},
		Destination: &quote.Destination{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ground"}, optionNames(res.Options))
	assert.True(t, res.Options[0].Rate.Equal(dec("10")))
}

func TestEngine_SortsByRate(t *testing.T) {
	h := newHarness(quote.Config{}, quote.DispatcherConfig{},
		[]ratetable.Record{{CarrierID: 2}},
		testCarriers,
		mock.New("alpha").
			WithRate("Express", shipper.ServiceExpress, "29.95", 2).
			WithRate("Economy", shipper.ServiceEconomy, "9.10", 7).
			WithRate("Standard", shipper.ServiceStandard, "15.82", 5),
	)

	res, err := h.engine.Quote(context.Background(), &quote.Request{
		Lines:       []quote.CartLine{cartLine(1, 1, 1, 1, "1")},
		Destination: &quote.Destination{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Economy", "Standard", "Express"}, optionNames(res.Options))
}

func TestEngine_NoMatchingRecords(t *testing.T) {
	h := newHarness(quote.Config{}, quote.DispatcherConfig{},
		[]ratetable.Record{{CarrierID: 2, CountryID: 124}},
		testCarriers,
		mock.New("alpha"),
	)

	res, err := h.engine.Quote(context.Background(), &quote.Request{
		Lines:       []quote.CartLine{cartLine(1, 1, 1, 1, "1")},
		Destination: &quote.Destination{CountryID: 840},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Options)
	assert.Equal(t, []string{quote.NoOptionsError}, res.Errors)
}

func TestEngine_AllFreeShippingCart(t *testing.T) {
	h := newHarness(quote.Config{FreeShippingOptionName: "Free Ground"}, quote.DispatcherConfig{},
		[]ratetable.Record{{CarrierID: 2}}, testCarriers, mock.New("alpha"))

	free := cartLine(1, 1, 1, 2, "3")
	free.FreeShipping = true
	res, err := h.engine.Quote(context.Background(), &quote.Request{
		Lines:       []quote.CartLine{free},
		Destination: &quote.Destination{},
	})
	require.NoError(t, err)
	require.Len(t, res.Options, 1)
	assert.Equal(t, "Free Ground", res.Options[0].Name)
	assert.True(t, res.Options[0].Rate.IsZero())
	assert.Empty(t, res.Errors)
}

func TestEngine_EmptyCart(t *testing.T) {
	h := newHarness(quote.Config{}, quote.DispatcherConfig{}, nil, testCarriers)

	res, err := h.engine.Quote(context.Background(), &quote.Request{
		Lines:       []quote.CartLine{},
		Destination: &quote.Destination{},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Options)
	assert.Equal(t, []string{quote.NoOptionsError}, res.Errors)
}

func TestEngine_RateTableFailure(t *testing.T) {
	logger := nopLogger()
	registry := shipper.NewRegistry()
	aggregator := quote.NewAggregator("")
	engine := quote.NewEngine(quote.Config{}, quote.NewPartitioner(), failingRecords{},
		quote.NewDispatcher(quote.DispatcherConfig{}, registry, usOrigins(), aggregator, logger, nil, nil),
		aggregator, logger, nil)

	res, err := engine.Quote(context.Background(), &quote.Request{
		Lines:       []quote.CartLine{cartLine(1, 1, 1, 1, "1")},
		Destination: &quote.Destination{},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Options)
	assert.Equal(t, []string{"rate table offline"}, res.Errors)
}

func TestEngine_InvalidRequests(t *testing.T) {
	h := newHarness(quote.Config{}, quote.DispatcherConfig{}, nil, testCarriers)
	zeroQty := cartLine(1, 1, 1, 0, "1")

	tests := []struct {
		name string
		req  *quote.Request
	}{
		{name: "nil request", req: nil},
		{name: "nil cart", req: &quote.Request{Destination: &quote.Destination{}}},
		{name: "nil destination", req: &quote.Request{Lines: []quote.CartLine{cartLine(1, 1, 1, 1, "1")}}},
		{name: "zero quantity", req: &quote.Request{Lines: []quote.CartLine{zeroQty}, Destination: &quote.Destination{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.engine.Quote(context.Background(), tt.req)
			assert.ErrorIs(t, err, quote.ErrInvalidRequest)
			assert.Nil(t, res)
		})
	}
}

func TestEngine_CancellationReturnsNoResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alpha := mock.New("alpha")
	alpha.OnGetQuote = func(ctx context.Context, _ *shipper.QuoteRequest) (*shipper.QuoteResponse, error) {
		cancel()
		return nil, ctx.Err()
	}
	h := newHarness(quote.Config{ReturnValidOptionsIfAny: true}, quote.DispatcherConfig{},
		[]ratetable.Record{{CarrierID: 2}}, testCarriers, alpha)

	res, err := h.engine.Quote(ctx, &quote.Request{
		Lines:       []quote.CartLine{cartLine(1, 1, 1, 1, "1")},
		Destination: &quote.Destination{},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestEngine_RequestModeOverridesConfig(t *testing.T) {
	alpha := mock.New("alpha").WithRate("Ground", shipper.ServiceStandard, "4", 3)
	h := newHarness(quote.Config{Mode: quote.ModeByProduct}, quote.DispatcherConfig{},
		[]ratetable.Record{{CarrierID: 2}}, testCarriers, alpha)

	byWarehouse := quote.ModeByWarehouse
	res, err := h.engine.Quote(context.Background(), &quote.Request{
		Lines: []quote.CartLine{
			cartLine(1, 1, 1, 1, "1"),
			cartLine(2, 1, 2, 1, "1"),
			cartLine(3, 2, 1, 1, "1"),
		},
		Destination: &quote.Destination{},
		Mode:        &byWarehouse,
	})
	require.NoError(t, err)
	assert.Len(t, alpha.Requests(), 2, "one request per warehouse")
	require.Len(t, res.Options, 1)
	assert.True(t, res.Options[0].Rate.Equal(dec("8")))
}

func TestEngine_RecordsMetrics(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	logger := nopLogger()
	registry := shipper.NewRegistry()
	registry.Register(mock.New("alpha"))
	aggregator := quote.NewAggregator("")
	store := ratetable.NewMemoryStore([]ratetable.Record{{CarrierID: 2}}, testCarriers)
	engine := quote.NewEngine(quote.Config{}, quote.NewPartitioner(), ratetable.NewResolver(store, logger),
		quote.NewDispatcher(quote.DispatcherConfig{}, registry, usOrigins(), aggregator, logger, metrics, nil),
		aggregator, logger, metrics)

	_, err := engine.Quote(context.Background(), &quote.Request{
		Lines:       []quote.CartLine{cartLine(1, 1, 1, 1, "1")},
		Destination: &quote.Destination{},
	})
	require.NoError(t, err)
	_, err = engine.Quote(context.Background(), nil)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QuotesTotal.WithLabelValues("by_product", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QuotesTotal.WithLabelValues("by_product", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CarrierRequests.WithLabelValues("alpha", "ok")))
}

func TestEngine_ResultDoesNotDependOnCartOrder(t *testing.T) {
	lines := []quote.CartLine{
		cartLine(1, 1, 1, 1, "1"),
		cartLine(2, 2, 1, 1, "1"),
		cartLine(3, 3, 1, 1, "1"),
	}
	orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	for _, order := range orders {
		h := newHarness(quote.Config{Mode: quote.ModeByWarehouse}, quote.DispatcherConfig{},
			[]ratetable.Record{
				{ID: 1, WarehouseID: 1, CarrierID: 2},
				{ID: 2, WarehouseID: 2, CarrierID: 3},
				{ID: 3, WarehouseID: 3, CarrierID: 2},
			},
			testCarriers,
			mock.New("alpha").WithRate("Express", shipper.ServiceExpress, "10", 2),
			mock.New("beta").WithRate("Priority", shipper.ServicePriority, "20", 1),
		)
		cart := make([]quote.CartLine, 0, len(order))
		for _, i := range order {
			cart = append(cart, lines[i])
		}

		res, err := h.engine.Quote(context.Background(), &quote.Request{Lines: cart, Destination: &quote.Destination{}})
		require.NoError(t, err)
		assert.Empty(t, res.Errors, "order %v", order)
		require.Len(t, res.Options, 1, "order %v", order)
		assert.Equal(t, "Express + Priority", res.Options[0].Name, "order %v", order)
		assert.True(t, res.Options[0].Rate.Equal(dec("40")), "order %v: rate %s", order, res.Options[0].Rate)
	}
}
