package freightcom_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipquote/pkg/shipper"
	"github.com/tournevent/shipquote/pkg/shipper/freightcom"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newTestClient(api freightcom.APIClient) *freightcom.Client {
	return freightcom.NewWithAPIClient(
		freightcom.Config{},
		api,
		otelzap.New(zap.NewNop()),
		nil,
	)
}

func quoteRequest(packages ...shipper.Package) *shipper.QuoteRequest {
	return &shipper.QuoteRequest{
		Origin: shipper.Address{
			Line1:        "123 Main St",
			City:         "Toronto",
			ProvinceCode: "ON",
			PostalCode:   "M5V 1A1",
			CountryCode:  "CA",
		},
		Destination: shipper.Address{
			Line1:        "456 Oak Ave",
			City:         "Vancouver",
			ProvinceCode: "BC",
			PostalCode:   "V6B 2W2",
			CountryCode:  "CA",
		},
		Packages: packages,
	}
}

func kg(w string) shipper.Package {
	return shipper.Package{Weight: decimal.RequireFromString(w), WeightUnit: shipper.WeightKG}
}

func TestClient_GetQuote_Success(t *testing.T) {
	client := newTestClient(freightcom.NewMockAPIClient())

	resp, err := client.GetQuote(context.Background(), quoteRequest(kg("5")))

	require.NoError(t, err)
	assert.True(t, resp.Success())
	assert.NotEmpty(t, resp.QuoteID)
	require.Len(t, resp.Rates, 3)
	assert.Equal(t, freightcom.SystemName, resp.Rates[0].Carrier)
	assert.Equal(t, "FedEx Ground", resp.Rates[0].ServiceName)
	assert.True(t, decimal.RequireFromString("20.24").Equal(resp.Rates[0].TotalPrice.Amount))
	assert.Equal(t, shipper.ServiceExpress, resp.Rates[1].ServiceType)
	require.NotNil(t, resp.Rates[2].TransitDays)
	assert.Equal(t, 4, *resp.Rates[2].TransitDays)
}

func TestClient_GetQuote_BuildsRequest(t *testing.T) {
	var got *freightcom.RatesRequest
	api := freightcom.NewMockAPIClient()
	api.OnGetRates = func(ctx context.Context, req *freightcom.RatesRequest) (*freightcom.RatesResponse, error) {
		got = req
		return &freightcom.RatesResponse{RequestID: "req-1", Status: "complete"}, nil
	}

	lb := shipper.Package{
		Weight:        decimal.NewFromInt(10),
		WeightUnit:    shipper.WeightLB,
		DeclaredValue: decimal.RequireFromString("40"),
		Currency:      "CAD",
	}
	resp, err := newTestClient(api).GetQuote(context.Background(), quoteRequest(kg("1.234"), lb))

	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.QuoteID)
	assert.Empty(t, resp.Rates)
	require.NotNil(t, got)
	assert.Equal(t, "Toronto", got.Details.Origin.City)
	assert.Equal(t, "BC", got.Details.Destination.Province)
	require.Len(t, got.Details.Packaging.Packages, 2)
	assert.Equal(t, json.Number("1.23"), got.Details.Packaging.Packages[0].Weight)
	assert.Equal(t, json.Number("4.54"), got.Details.Packaging.Packages[1].Weight)
	require.NotNil(t, got.Details.DeclaredValue)
	assert.Equal(t, json.Number("40.00"), got.Details.DeclaredValue.Value)
}

func TestClient_GetQuote_InvalidPackages(t *testing.T) {
	client := newTestClient(freightcom.NewMockAPIClient())

	_, err := client.GetQuote(context.Background(), quoteRequest())
	assert.ErrorIs(t, err, shipper.ErrInvalidPackage)

	_, err = client.GetQuote(context.Background(), quoteRequest(kg("-1")))
	assert.ErrorIs(t, err, shipper.ErrInvalidPackage)
}

func TestClient_GetQuote_APIError(t *testing.T) {
	api := freightcom.NewMockAPIClient()
	api.SimulateErrors = true

	_, err := newTestClient(api).GetQuote(context.Background(), quoteRequest(kg("1")))

	require.Error(t, err)
	var se *shipper.ShipperError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, freightcom.SystemName, se.Carrier)
	assert.Equal(t, "MOCK_ERROR", se.Code)
}

func TestClient_GetQuote_TransportErrorIsRetryable(t *testing.T) {
	api := freightcom.NewMockAPIClient()
	api.OnGetRates = func(ctx context.Context, req *freightcom.RatesRequest) (*freightcom.RatesResponse, error) {
		return nil, errors.New("connection reset")
	}

	_, err := newTestClient(api).GetQuote(context.Background(), quoteRequest(kg("1")))

	require.Error(t, err)
	assert.True(t, shipper.IsRetryable(err))
	assert.Equal(t, "TRANSPORT", shipper.ErrorCode(err))
}

func TestClient_GetQuote_Cancelled(t *testing.T) {
	api := freightcom.NewMockAPIClient()
	api.SimulateLatency = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(api).GetQuote(ctx, quoteRequest(kg("1")))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPAPIClient_GetRates_Polls(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/rate":
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), `"weight":2.5`)
			w.WriteHeader(http.StatusAccepted)
			_, _ = io.WriteString(w, `{"request_id":"abc","status":"pending"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/rate/abc":
			if polls.Add(1) < 2 {
				_, _ = io.WriteString(w, `{"request_id":"abc","status":"pending"}`)
				return
			}
			_, _ = io.WriteString(w, `{"request_id":"abc","status":"complete","rates":[
				{"id":"r1","service_code":"UPS_GROUND","service_name":"UPS Ground","total_price":18.35,"currency":"CAD","transit_days":4}
			]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	api := freightcom.NewHTTPAPIClient(freightcom.HTTPAPIClientConfig{
		BaseURL:      srv.URL,
		APIKey:       "secret",
		PollInterval: 5 * time.Millisecond,
	})
	resp, err := newTestClient(api).GetQuote(context.Background(), quoteRequest(kg("2.5")))

	require.NoError(t, err)
	assert.Equal(t, int32(2), polls.Load())
	require.Len(t, resp.Rates, 1)
	assert.Equal(t, "UPS Ground", resp.Rates[0].ServiceName)
	assert.True(t, decimal.RequireFromString("18.35").Equal(resp.Rates[0].TotalPrice.Amount))
}

func TestHTTPAPIClient_GetRates_PollTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"request_id":"abc","status":"pending"}`)
	}))
	defer srv.Close()

	api := freightcom.NewHTTPAPIClient(freightcom.HTTPAPIClientConfig{
		BaseURL:      srv.URL,
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  30 * time.Millisecond,
	})
	_, err := newTestClient(api).GetQuote(context.Background(), quoteRequest(kg("1")))

	require.Error(t, err)
	assert.ErrorIs(t, err, shipper.ErrServiceUnavailable)
	assert.True(t, shipper.IsRetryable(err))
}

func TestHTTPAPIClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"invalid api key"}`)
	}))
	defer srv.Close()

	api := freightcom.NewHTTPAPIClient(freightcom.HTTPAPIClientConfig{BaseURL: srv.URL})
	_, err := newTestClient(api).GetQuote(context.Background(), quoteRequest(kg("1")))

	require.Error(t, err)
	assert.ErrorIs(t, err, shipper.ErrAuthenticationFailed)
	assert.False(t, shipper.IsRetryable(err))
	assert.Equal(t, "HTTP_401", shipper.ErrorCode(err))
}
