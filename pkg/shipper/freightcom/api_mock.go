package freightcom

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
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}

	if m.OnGetRates != nil {
		return m.OnGetRates(ctx, req)
	}

	now := time.Now()
	expiresAt := now.Add(30 * time.Minute).Format(time.RFC3339)

	return &RatesResponse{
		RequestID: "fc-req-" + uuid.New().String()[:8],
		Status:    "complete",
		Rates: []Rate{
			mockRate(101, "fedex", "FedEx", "FEDEX_GROUND", "FedEx Ground", "15.99", "1.92", "2.33", "20.24", 3, now, expiresAt),
			mockRate(102, "fedex", "FedEx", "FEDEX_EXPRESS_SAVER", "FedEx Express Saver", "28.99", "3.48", "4.22", "36.69", 2, now, expiresAt),
			mockRate(201, "ups", "UPS", "UPS_GROUND", "UPS Ground", "14.50", "1.74", "2.11", "18.35", 4, now, expiresAt),
		},
	}, nil
}

func mockRate(serviceID int, carrierCode, carrierName, code, name, base, fuel, tax, total string, days int, now time.Time, expiresAt string) Rate {
	return Rate{
		ID:                "rate-" + uuid.New().String()[:8],
		ServiceID:         serviceID,
		CarrierCode:       carrierCode,
		CarrierName:       carrierName,
		ServiceCode:       code,
		ServiceName:       name,
		BaseRate:          decimal.RequireFromString(base),
		FuelSurcharge:     decimal.RequireFromString(fuel),
		TotalTax:          decimal.RequireFromString(tax),
		TotalPrice:        decimal.RequireFromString(total),
		Currency:          "CAD",
		TransitDays:       days,
		EstimatedDelivery: now.AddDate(0, 0, days).Format("2006-01-02"),
		Guaranteed:        days <= 2,
		ExpiresAt:         expiresAt,
	}
}

var _ APIClient = (*MockAPIClient)(nil)
