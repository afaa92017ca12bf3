package purolator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetRates func(ctx context.Context, req *RatesRequest) (*RatesResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// GetRates returns mock shipping rates.
func (m *MockAPIClient) GetRates(ctx context.Context, req *RatesRequest) (*RatesResponse, error) {
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
		QuoteID: "puro-quote-" + uuid.New().String()[:8],
		ShipmentRates: []ShipmentRate{
			mockRate("PurolatorGround", "16.75", "2.01", "2.44", "21.20", 5, now),
			mockRate("PurolatorExpress", "28.50", "3.42", "4.15", "36.07", 2, now),
			mockRate("PurolatorExpress9AM", "45.00", "5.40", "6.55", "56.95", 1, now),
		},
	}, nil
}

func mockRate(code, base, fuel, taxes, total string, days int, now time.Time) ShipmentRate {
	return ShipmentRate{
		ServiceCode:          code,
		ServiceName:          serviceName(code),
		BasePrice:            decimal.RequireFromString(base),
		FuelSurcharge:        decimal.RequireFromString(fuel),
		Taxes:                decimal.RequireFromString(taxes),
		TotalPrice:           decimal.RequireFromString(total),
		ExpectedDeliveryDate: now.AddDate(0, 0, days).Format("2006-01-02"),
		EstimatedTransitDays: days,
		GuaranteedDelivery:   guaranteedServices[code],
	}
}

var _ APIClient = (*MockAPIClient)(nil)
