package canadapost

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetRates func(ctx context.Context, req *RatesRequest) (*RatesResponse, error)

	calls atomic.Int64
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// Calls returns how many times GetRates was invoked.
func (m *MockAPIClient) Calls() int {
	return int(m.calls.Load())
}

// GetRates returns mock shipping rates.
func (m *MockAPIClient) GetRates(ctx context.Context, req *RatesRequest) (*RatesResponse, error) {
	m.calls.Add(1)

	if m.SimulateLatency > 0 {
		select {
		case <-time.After(m.SimulateLatency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Description: "Simulated API error"}
	}

	if m.OnGetRates != nil {
		return m.OnGetRates(ctx, req)
	}

	now := time.Now()
	return &RatesResponse{
		QuoteID: "cp-quote-" + uuid.New().String()[:8],
		Rates: []Rate{
			mockRate("DOM.RP", "Regular Parcel", "9.99", "1.20", "1.46", "12.65", 5, now, false),
			mockRate("DOM.XP", "Xpresspost", "19.99", "2.40", "2.91", "25.30", 2, now, true),
			mockRate("DOM.PC", "Priority", "34.99", "4.20", "5.10", "44.29", 1, now, true),
		},
	}, nil
}

func mockRate(code, name, base, fuel, taxes, total string, days int, now time.Time, guaranteed bool) Rate {
	return Rate{
		ServiceCode:        code,
		ServiceName:        name,
		BaseRate:           decimal.RequireFromString(base),
		FuelSurcharge:      decimal.RequireFromString(fuel),
		Taxes:              decimal.RequireFromString(taxes),
		TotalPrice:         decimal.RequireFromString(total),
		ExpectedTransit:    days,
		ExpectedDelivery:   now.AddDate(0, 0, days).Format("2006-01-02"),
		GuaranteedDelivery: guaranteed,
	}
}

var _ APIClient = (*MockAPIClient)(nil)
