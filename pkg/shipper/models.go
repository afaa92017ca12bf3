package shipper

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceType represents the shipping service type.
type ServiceType string

const (
	ServiceStandard  ServiceType = "standard"
	ServiceExpress   ServiceType = "express"
	ServicePriority  ServiceType = "priority"
	ServiceOvernight ServiceType = "overnight"
	ServiceEconomy   ServiceType = "economy"
	ServiceFreight   ServiceType = "freight"
)

// WeightUnit represents weight measurement unit.
type WeightUnit string

const (
	WeightKG WeightUnit = "kg"
	WeightLB WeightUnit = "lb"
)

// Address represents a shipping address.
type Address struct {
	Name         string
	Line1        string
	Line2        string
	City         string
	County       string
	ProvinceCode string // e.g., "ON", "CA"
	PostalCode   string
	CountryCode  string // ISO 3166-1 alpha-2, e.g., "CA", "US"
	Phone        string
}

// Package represents a package to be rated.
type Package struct {
	Weight        decimal.Decimal
	WeightUnit    WeightUnit
	DeclaredValue decimal.Decimal
	Currency      string
}

// Item is a cart item travelling in a package.
type Item struct {
	ProductID int64
	Quantity  int
	Weight    decimal.Decimal
	UnitPrice decimal.Decimal
}

// Money represents a monetary amount.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// RateOption represents a shipping rate option from a carrier.
type RateOption struct {
	RateID            string
	Carrier           string
	ServiceCode       string
	ServiceName       string
	ServiceType       ServiceType
	TotalPrice        Money
	TransitDays       *int
	EstimatedDelivery *time.Time
}

// ShippingOptions narrows what the carrier is asked to quote.
type ShippingOptions struct {
	ServiceNames []string // Empty = all services
	ServiceTypes []ServiceType
}

// QuoteRequest is the request for getting shipping quotes.
type QuoteRequest struct {
	Origin      Address
	Destination Address
	Packages    []Package
	Items       []Item
	Options     ShippingOptions
}

// TotalWeight returns the summed weight of all packages.
func (r *QuoteRequest) TotalWeight() decimal.Decimal {
	total := decimal.Zero
	for _, p := range r.Packages {
		total = total.Add(p.Weight)
	}
	return total
}

// QuoteResponse is the response from getting shipping quotes.
type QuoteResponse struct {
	QuoteID   string
	Rates     []RateOption
	Errors    []string
	ExpiresAt time.Time
}

// Success reports whether the carrier accepted the request.
func (r *QuoteResponse) Success() bool {
	return r != nil && len(r.Errors) == 0
}
