// Package ratetable holds the locally configured weight/subtotal banded rate
// records, the resolver that selects the records applying to a shipment, and
// the formula that turns a carrier's quoted rate into the charged rate.
package ratetable

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Record is one configured rate row. A zero scope key (or empty zip) matches
// any value; a zero band bound leaves that side of the band open.
type Record struct {
	ID              int64  `gorm:"primaryKey" json:"id"`
	VendorID        int64  `gorm:"index" json:"vendorId"`
	WarehouseID     int64  `gorm:"index" json:"warehouseId"`
	CarrierID       int64  `gorm:"index" json:"carrierId"`
	CountryID       int64  `json:"countryId"`
	StateProvinceID int64  `json:"stateProvinceId"`
	Zip             string `gorm:"size:32" json:"zip"`

	// ShippingMethodName restricts the record to the carrier service with
	// this name. Empty applies the record to every service of the carrier.
	ShippingMethodName string `gorm:"size:255" json:"shippingMethod"`

	WeightFrom   decimal.Decimal `gorm:"type:numeric(18,4)" json:"weightFrom"`
	WeightTo     decimal.Decimal `gorm:"type:numeric(18,4)" json:"weightTo"`
	SubtotalFrom decimal.Decimal `gorm:"type:numeric(18,4)" json:"subtotalFrom"`
	SubtotalTo   decimal.Decimal `gorm:"type:numeric(18,4)" json:"subtotalTo"`

	AdditionalFixedCost      decimal.Decimal `gorm:"type:numeric(18,4)" json:"additionalFixedCost"`
	RatePerWeightUnit        decimal.Decimal `gorm:"type:numeric(18,4)" json:"ratePerWeightUnit"`
	LowerWeightLimit         decimal.Decimal `gorm:"type:numeric(18,4)" json:"lowerWeightLimit"`
	PercentageRateOfSubtotal decimal.Decimal `gorm:"type:numeric(18,4)" json:"percentageRateOfSubtotal"`

	TransitDays  *int `json:"transitDays,omitempty"`
	DisplayOrder int  `json:"displayOrder"`
}

// TableName specifies the table name for Record.
func (Record) TableName() string {
	return "shipping_rate_records"
}

// Carrier maps a record's CarrierID to the rate provider that can quote it.
type Carrier struct {
	ID                     int64  `gorm:"primaryKey" json:"id"`
	Name                   string `gorm:"size:255;not null" json:"name"`
	RateProviderSystemName string `gorm:"size:100;not null" json:"rateProvider"`
}

// TableName specifies the table name for Carrier.
func (Carrier) TableName() string {
	return "shipping_carriers"
}

// Scope is the set of scope keys a lookup is filtered by. Zero values are wildcards.
type Scope struct {
	VendorID        int64
	WarehouseID     int64
	CarrierID       int64
	CountryID       int64
	StateProvinceID int64
	Zip             string
}

// Query is a full resolver lookup: scope plus the weight and subtotal to band.
type Query struct {
	Scope
	Weight   decimal.Decimal
	Subtotal decimal.Decimal
}

// Matches reports whether the record applies to q.
func (r *Record) Matches(q Query) bool {
	return keyMatches(r.VendorID, q.VendorID) &&
		keyMatches(r.WarehouseID, q.WarehouseID) &&
		keyMatches(r.CarrierID, q.CarrierID) &&
		keyMatches(r.CountryID, q.CountryID) &&
		keyMatches(r.StateProvinceID, q.StateProvinceID) &&
		zipMatches(r.Zip, q.Zip) &&
		inBand(q.Weight, r.WeightFrom, r.WeightTo) &&
		inBand(q.Subtotal, r.SubtotalFrom, r.SubtotalTo)
}

// AppliesTo reports whether the record prices the named carrier service.
func (r *Record) AppliesTo(serviceName string) bool {
	method := strings.TrimSpace(r.ShippingMethodName)
	return method == "" || strings.EqualFold(method, strings.TrimSpace(serviceName))
}

// specificity counts the scope keys the record pins down.
func (r *Record) specificity() int {
	n := 0
	for _, k := range []int64{r.VendorID, r.WarehouseID, r.CarrierID, r.CountryID, r.StateProvinceID} {
		if k != 0 {
			n++
		}
	}
	if strings.TrimSpace(r.Zip) != "" {
		n++
	}
	return n
}

func keyMatches(configured, requested int64) bool {
	return configured == 0 || requested == 0 || configured == requested
}

func zipMatches(configured, requested string) bool {
	configured = strings.TrimSpace(configured)
	requested = strings.TrimSpace(requested)
	return configured == "" || requested == "" || strings.EqualFold(configured, requested)
}

func inBand(v, from, to decimal.Decimal) bool {
	if !from.IsZero() && v.LessThan(from) {
		return false
	}
	if !to.IsZero() && v.GreaterThan(to) {
		return false
	}
	return true
}
