package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/tournevent/shipquote/pkg/shipper"
)

// ErrUnknownOrigin is returned when no ship-from address is configured.
var ErrUnknownOrigin = errors.New("no origin address configured")

// OriginResolver supplies the ship-from address of a warehouse.
type OriginResolver interface {
	Origin(ctx context.Context, warehouseID int64) (shipper.Address, error)
}

// StaticOrigins resolves origins from a fixed table, falling back to Default
// for unknown warehouses and units spanning several warehouses (ID 0).
type StaticOrigins struct {
	Default    shipper.Address
	Warehouses map[int64]shipper.Address
}

// Origin implements OriginResolver.
func (s StaticOrigins) Origin(_ context.Context, warehouseID int64) (shipper.Address, error) {
	if addr, ok := s.Warehouses[warehouseID]; ok {
		return addr, nil
	}
	if s.Default.CountryCode == "" {
		return shipper.Address{}, fmt.Errorf("%w: warehouse %d", ErrUnknownOrigin, warehouseID)
	}
	return s.Default, nil
}
