// Package quote turns a shopping cart into priced shipping options. It splits
// the cart into calculation units, resolves the configured rate records for
// each unit, asks the carriers named by those records for live rates and
// folds the answers into one cart-level result.
package quote

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tournevent/shipquote/internal/ratetable"
	"github.com/tournevent/shipquote/pkg/shipper"
)

// ErrInvalidRequest is returned for requests the engine cannot process at all.
var ErrInvalidRequest = errors.New("invalid quote request")

// Mode selects how a cart is split into calculation units.
type Mode int

const (
	ModeByProduct Mode = iota
	ModeByWarehouse
)

func (m Mode) String() string {
	switch m {
	case ModeByWarehouse:
		return "by_warehouse"
	default:
		return "by_product"
	}
}

// ParseMode parses "by_product" or "by_warehouse". Empty selects ModeByProduct.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "by_product", "product":
		return ModeByProduct, nil
	case "by_warehouse", "warehouse":
		return ModeByWarehouse, nil
	default:
		return ModeByProduct, fmt.Errorf("unknown processing mode %q", s)
	}
}

// CartLine is one shopping-cart entry contributing to shipping.
type CartLine struct {
	ProductID          int64           `json:"productId"`
	WarehouseID        int64           `json:"warehouseId"`
	VendorID           int64           `json:"vendorId"`
	Quantity           int             `json:"quantity"`
	OverriddenQuantity *int            `json:"overriddenQuantity,omitempty"`
	Weight             decimal.Decimal `json:"weight"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	FreeShipping       bool            `json:"freeShipping"`
	ShipSeparately     bool            `json:"shipSeparately"`
}

// EffectiveQuantity is the overridden quantity when set, else the quantity.
func (l CartLine) EffectiveQuantity() int {
	if l.OverriddenQuantity != nil {
		return *l.OverriddenQuantity
	}
	return l.Quantity
}

// TotalWeight is the per-item weight times the effective quantity.
func (l CartLine) TotalWeight() decimal.Decimal {
	return l.Weight.Mul(decimal.NewFromInt(int64(l.EffectiveQuantity())))
}

// Subtotal is the unit price times the effective quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.EffectiveQuantity())))
}

func (l CartLine) validate() error {
	if l.EffectiveQuantity() <= 0 {
		return fmt.Errorf("product %d: quantity must be positive", l.ProductID)
	}
	if l.Weight.IsNegative() {
		return fmt.Errorf("product %d: weight must not be negative", l.ProductID)
	}
	if l.UnitPrice.IsNegative() {
		return fmt.Errorf("product %d: unit price must not be negative", l.ProductID)
	}
	return nil
}

// Destination is where the cart ships to. The numeric IDs select rate
// records; the ISO codes and address lines are passed to carriers.
type Destination struct {
	CountryID       int64  `json:"countryId"`
	StateProvinceID int64  `json:"stateProvinceId"`
	Zip             string `json:"zip"`
	County          string `json:"county,omitempty"`
	City            string `json:"city,omitempty"`
	CountryCode     string `json:"countryCode,omitempty"`
	ProvinceCode    string `json:"provinceCode,omitempty"`
	Line1           string `json:"line1,omitempty"`
	Name            string `json:"name,omitempty"`
}

// Scope returns the destination part of a rate table lookup.
func (d Destination) Scope() ratetable.Scope {
	return ratetable.Scope{
		CountryID:       d.CountryID,
		StateProvinceID: d.StateProvinceID,
		Zip:             d.Zip,
	}
}

// Address converts the destination into a carrier address.
func (d Destination) Address() shipper.Address {
	return shipper.Address{
		Name:         d.Name,
		Line1:        d.Line1,
		City:         d.City,
		County:       d.County,
		ProvinceCode: d.ProvinceCode,
		PostalCode:   d.Zip,
		CountryCode:  d.CountryCode,
	}
}

// Category tags an option so composites can be restricted by kind.
type Category int

const (
	CategoryOther Category = iota
	CategoryRegular
	CategoryExpress
)

func (c Category) String() string {
	switch c {
	case CategoryRegular:
		return "regular"
	case CategoryExpress:
		return "express"
	default:
		return "other"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// CategoryFor maps a carrier service type to an option category.
func CategoryFor(t shipper.ServiceType) Category {
	switch t {
	case shipper.ServiceExpress, shipper.ServicePriority, shipper.ServiceOvernight:
		return CategoryExpress
	case shipper.ServiceStandard, shipper.ServiceEconomy:
		return CategoryRegular
	default:
		return CategoryOther
	}
}

// compatible reports whether two options may form a composite. Express pairs
// only with express and regular only with regular.
func (c Category) compatible(other Category) bool {
	return c == other
}

// Option is one purchasable cart-level shipping option.
type Option struct {
	Name              string          `json:"name"`
	Rate              decimal.Decimal `json:"rate"`
	TransitDays       *int            `json:"transitDays,omitempty"`
	DisplayOrder      int             `json:"displayOrder"`
	CarrierSystemName string          `json:"carrier"`
	Category          Category        `json:"category"`

	// Covers counts the priced parts (packages or units) the rate includes.
	Covers int `json:"-"`
}

// Result is the outcome of a quote. Options and Errors may both be non-empty.
type Result struct {
	Options                      []Option `json:"options"`
	Errors                       []string `json:"errors"`
	ShippedFromMultipleLocations bool     `json:"shippedFromMultipleLocations"`
}

func sameService(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func maxTransit(a, b *int) *int {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *b > *a:
		return b
	default:
		return a
	}
}
