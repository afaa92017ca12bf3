package purolator

import (
	"context"

	"github.com/shopspring/decimal"
)

// APIClient defines the Purolator EstimatingService operations.
type APIClient interface {
	// GetRates fetches a full estimate for a shipment.
	GetRates(ctx context.Context, req *RatesRequest) (*RatesResponse, error)
}

// RatesRequest represents a Purolator rate quote request.
type RatesRequest struct {
	BillingAccountNumber string
	SenderPostalCode     string
	ReceiverAddress      Address
	PackageInformation   PackageInformation
}

// PackageInformation contains package details for rating.
type PackageInformation struct {
	TotalWeight Weight
	TotalPieces int
}

// Weight represents package weight.
type Weight struct {
	Value decimal.Decimal
	Unit  string // "lb" or "kg"
}

// Address represents a Purolator receiver address.
type Address struct {
	City       string
	Province   string
	PostalCode string
	Country    string
}

// RatesResponse represents the Purolator rate quote response.
type RatesResponse struct {
	QuoteID       string
	ShipmentRates []ShipmentRate
}

// ShipmentRate represents a single rate option.
type ShipmentRate struct {
	ServiceCode          string
	ServiceName          string
	BasePrice            decimal.Decimal
	FuelSurcharge        decimal.Decimal
	Taxes                decimal.Decimal
	TotalPrice           decimal.Decimal
	ExpectedDeliveryDate string
	EstimatedTransitDays int
	GuaranteedDelivery   bool
}

// APIError represents an error from the Purolator API.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Description
}
