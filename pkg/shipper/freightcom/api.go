package freightcom

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// APIClient defines the Freightcom rating operations.
type APIClient interface {
	// GetRates fetches shipping rates for a whole shipment. The HTTP
	// implementation submits the request and polls until rates are ready.
	GetRates(ctx context.Context, req *RatesRequest) (*RatesResponse, error)
}

// RatesRequest represents a Freightcom rate quote request.
// POST /rate endpoint
type RatesRequest struct {
	Services         []int           `json:"services,omitempty"`
	ExcludedServices []int           `json:"excluded_services,omitempty"`
	Details          ShippingDetails `json:"details"`
}

// ShippingDetails contains shipping information for rate requests.
type ShippingDetails struct {
	Origin        Location      `json:"origin"`
	Destination   Location      `json:"destination"`
	Packaging     PackagingInfo `json:"packaging"`
	DeclaredValue *Amount       `json:"declared_value,omitempty"`
}

// Location represents origin or destination.
type Location struct {
	Name        string `json:"name,omitempty"`
	Address1    string `json:"address_1,omitempty"`
	Address2    string `json:"address_2,omitempty"`
	City        string `json:"city"`
	Province    string `json:"province"`
	PostalCode  string `json:"postal_code"`
	Country     string `json:"country"` // ISO 3166-1 alpha-2
	Residential bool   `json:"residential,omitempty"`
}

// PackagingInfo contains package details.
type PackagingInfo struct {
	Type     string    `json:"type"` // "package", "envelope", "pallet"
	Packages []Package `json:"packages"`
}

// Package represents a single package.
type Package struct {
	Weight      json.Number `json:"weight"` // kg
	Description string      `json:"description,omitempty"`
	Quantity    int         `json:"quantity,omitempty"`
}

// Amount is a money value in the request payload.
type Amount struct {
	Value    json.Number `json:"value"`
	Currency string      `json:"currency"`
}

// RateRequestResponse is the initial response from POST /rate.
type RateRequestResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// RatesResponse represents the Freightcom rate quote response.
// GET /rate/{request_id} endpoint
type RatesResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"` // "pending", "complete", "error"
	Rates     []Rate `json:"rates,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Rate represents a single shipping rate option.
type Rate struct {
	ID                string          `json:"id"`
	ServiceID         int             `json:"service_id"`
	CarrierCode       string          `json:"carrier_code"`
	CarrierName       string          `json:"carrier_name"`
	ServiceCode       string          `json:"service_code"`
	ServiceName       string          `json:"service_name"`
	BaseRate          decimal.Decimal `json:"base_rate"`
	FuelSurcharge     decimal.Decimal `json:"fuel_surcharge"`
	TotalTax          decimal.Decimal `json:"total_tax"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	Currency          string          `json:"currency"`
	TransitDays       int             `json:"transit_days"`
	EstimatedDelivery string          `json:"estimated_delivery,omitempty"`
	Guaranteed        bool            `json:"guaranteed"`
	ExpiresAt         string          `json:"expires_at"`
}

// APIError represents an error from the Freightcom API.
type APIError struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Errors     map[string]string `json:"errors,omitempty"` // Field-level errors
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}
