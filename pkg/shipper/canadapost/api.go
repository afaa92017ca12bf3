package canadapost

import (
	"context"

	"github.com/shopspring/decimal"
)

// APIClient is the Canada Post rating API. The HTTP implementation talks to
// the REST/XML service; MockAPIClient answers locally.
type APIClient interface {
	// GetRates prices one parcel for every service available on the lane.
	GetRates(ctx context.Context, req *RatesRequest) (*RatesResponse, error)
}

// RatesRequest is a single-parcel rate request.
type RatesRequest struct {
	CustomerNumber string
	ContractID     string
	OriginPostal   string
	WeightKG       decimal.Decimal
	Destination    Destination
}

// Destination is exactly one of the three destination kinds.
type Destination struct {
	Domestic      *DomesticDestination
	UnitedStates  *UnitedStatesDestination
	International *InternationalDestination
}

// DomesticDestination for Canadian addresses.
type DomesticDestination struct {
	PostalCode string
}

// UnitedStatesDestination for US addresses.
type UnitedStatesDestination struct {
	ZipCode string
}

// InternationalDestination for every other country.
type InternationalDestination struct {
	CountryCode string
}

// RatesResponse holds the priced services for one parcel.
type RatesResponse struct {
	QuoteID string
	Rates   []Rate
}

// Rate is one priced Canada Post service.
type Rate struct {
	ServiceCode        string
	ServiceName        string
	BaseRate           decimal.Decimal
	FuelSurcharge      decimal.Decimal
	Taxes              decimal.Decimal
	TotalPrice         decimal.Decimal
	ExpectedTransit    int
	ExpectedDelivery   string
	GuaranteedDelivery bool
}

// APIError is an error message returned by the Canada Post API.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Description
}
