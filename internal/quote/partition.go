package quote

// Partitioner splits a cart into calculation units.
type Partitioner interface {
	Partition(lines []CartLine, mode Mode) []Unit
}

// CartPartitioner groups lines by product or by warehouse. Units come out in
// the order their first line appears in the cart.
type CartPartitioner struct{}

// NewPartitioner creates a cart partitioner.
func NewPartitioner() CartPartitioner {
	return CartPartitioner{}
}

// Partition implements Partitioner. Every input line lands in exactly one unit.
func (CartPartitioner) Partition(lines []CartLine, mode Mode) []Unit {
	if len(lines) == 0 {
		return nil
	}

	switch mode {
	case ModeByWarehouse:
		return groupBy(lines, UnitWarehouse, func(l CartLine) int64 { return l.WarehouseID })
	default:
		if isSimpleCart(lines) {
			b := NewUnitBuilder(UnitCart)
			for _, l := range lines {
				b.Add(l)
			}
			return []Unit{b.Build()}
		}
		return groupBy(lines, UnitProduct, func(l CartLine) int64 { return l.ProductID })
	}
}

// isSimpleCart reports whether every line shares one warehouse and one vendor.
func isSimpleCart(lines []CartLine) bool {
	for _, l := range lines[1:] {
		if l.WarehouseID != lines[0].WarehouseID || l.VendorID != lines[0].VendorID {
			return false
		}
	}
	return true
}

func groupBy(lines []CartLine, kind UnitKind, key func(CartLine) int64) []Unit {
	builders := make(map[int64]*UnitBuilder)
	var order []int64
	for _, l := range lines {
		k := key(l)
		b, ok := builders[k]
		if !ok {
			b = NewUnitBuilder(kind)
			builders[k] = b
			order = append(order, k)
		}
		b.Add(l)
	}

	units := make([]Unit, 0, len(order))
	for _, k := range order {
		units = append(units, builders[k].Build())
	}
	return units
}
