package quote

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tournevent/shipquote/internal/ratetable"
)

// UnitKind is the grouping key a calculation unit was built around.
type UnitKind int

const (
	UnitCart UnitKind = iota
	UnitProduct
	UnitWarehouse
)

// Unit is one independently quoted part of a cart. Units are values: use
// UnitBuilder or WithRecords to derive new ones.
type Unit struct {
	Kind        UnitKind
	ProductID   int64
	WarehouseID int64
	VendorID    int64

	// Weight and Subtotal exclude free-shipping lines.
	Weight   decimal.Decimal
	Subtotal decimal.Decimal

	// Items holds every line of the unit, free-shipping ones included.
	Items   []CartLine
	Records []ratetable.Record
}

// ChargeableItems returns the lines that are not free-shipping.
func (u Unit) ChargeableItems() []CartLine {
	out := make([]CartLine, 0, len(u.Items))
	for _, l := range u.Items {
		if !l.FreeShipping {
			out = append(out, l)
		}
	}
	return out
}

// Free reports whether every line of the unit ships free.
func (u Unit) Free() bool {
	for _, l := range u.Items {
		if !l.FreeShipping {
			return false
		}
	}
	return true
}

// Query builds the rate table lookup for the unit shipping to dest.
func (u Unit) Query(dest Destination) ratetable.Query {
	scope := dest.Scope()
	scope.VendorID = u.VendorID
	scope.WarehouseID = u.WarehouseID
	return ratetable.Query{Scope: scope, Weight: u.Weight, Subtotal: u.Subtotal}
}

// WithRecords returns a copy of the unit carrying records.
func (u Unit) WithRecords(records []ratetable.Record) Unit {
	u.Items = append([]CartLine(nil), u.Items...)
	u.Records = append([]ratetable.Record(nil), records...)
	return u
}

func (u Unit) key() int64 {
	if u.Kind == UnitWarehouse {
		return u.WarehouseID
	}
	return u.ProductID
}

// String identifies the unit in error messages.
func (u Unit) String() string {
	switch u.Kind {
	case UnitProduct:
		return fmt.Sprintf("product %d", u.ProductID)
	case UnitWarehouse:
		return fmt.Sprintf("warehouse %d", u.WarehouseID)
	default:
		return "cart"
	}
}

// UnitBuilder accumulates cart lines into a Unit.
type UnitBuilder struct {
	kind  UnitKind
	items []CartLine
}

// NewUnitBuilder starts a unit of the given kind.
func NewUnitBuilder(kind UnitKind) *UnitBuilder {
	return &UnitBuilder{kind: kind}
}

// Add appends a line.
func (b *UnitBuilder) Add(line CartLine) *UnitBuilder {
	b.items = append(b.items, line)
	return b
}

// Build returns the unit. Warehouse, vendor and product keys are set when all
// lines agree on them and left 0 (wildcard) otherwise.
func (b *UnitBuilder) Build() Unit {
	u := Unit{
		Kind:     b.kind,
		Weight:   decimal.Zero,
		Subtotal: decimal.Zero,
		Items:    append([]CartLine(nil), b.items...),
	}
	if len(b.items) == 0 {
		return u
	}

	u.ProductID = b.items[0].ProductID
	u.WarehouseID = b.items[0].WarehouseID
	u.VendorID = b.items[0].VendorID
	for _, l := range b.items {
		if l.ProductID != u.ProductID {
			u.ProductID = 0
		}
		if l.WarehouseID != u.WarehouseID {
			u.WarehouseID = 0
		}
		if l.VendorID != u.VendorID {
			u.VendorID = 0
		}
		if l.FreeShipping {
			continue
		}
		u.Weight = u.Weight.Add(l.TotalWeight())
		u.Subtotal = u.Subtotal.Add(l.Subtotal())
	}
	return u
}
