package ratetable

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore reads rate records and carriers from a SQL database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// OpenPostgres connects to the rate table database at dsn.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to rate table database: %w", err)
	}
	return NewGormStore(db), nil
}

// Migrate creates or updates the rate table schema.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Carrier{}, &Record{})
}

// Records returns the rows whose non-wildcard scope keys agree with scope.
// Band filtering is left to the resolver.
func (s *GormStore) Records(ctx context.Context, scope Scope) ([]Record, error) {
	tx := s.db.WithContext(ctx).Model(&Record{})
	tx = whereKey(tx, "vendor_id", scope.VendorID)
	tx = whereKey(tx, "warehouse_id", scope.WarehouseID)
	tx = whereKey(tx, "carrier_id", scope.CarrierID)
	tx = whereKey(tx, "country_id", scope.CountryID)
	tx = whereKey(tx, "state_province_id", scope.StateProvinceID)
	if zip := strings.TrimSpace(scope.Zip); zip != "" {
		tx = tx.Where("(zip = '' OR LOWER(zip) = LOWER(?))", zip)
	}

	var records []Record
	if err := tx.Order("display_order, id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("querying rate records: %w", err)
	}
	return records, nil
}

// Carriers returns every configured carrier.
func (s *GormStore) Carriers(ctx context.Context) ([]Carrier, error) {
	var carriers []Carrier
	if err := s.db.WithContext(ctx).Order("id").Find(&carriers).Error; err != nil {
		return nil, fmt.Errorf("querying carriers: %w", err)
	}
	return carriers, nil
}

func whereKey(tx *gorm.DB, column string, value int64) *gorm.DB {
	if value == 0 {
		return tx
	}
	return tx.Where(column+" IN (0, ?)", value)
}

var _ Store = (*GormStore)(nil)
