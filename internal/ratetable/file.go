package ratetable

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// fileAmount decodes a YAML scalar ("5", "2.50", 0.75) into a decimal.
type fileAmount struct {
	decimal.Decimal
}

func (a *fileAmount) UnmarshalYAML(value *yaml.Node) error {
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		a.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid amount %q: %w", value.Line, raw, err)
	}
	a.Decimal = d
	return nil
}

type fileCarrier struct {
	ID           int64  `yaml:"id"`
	Name         string `yaml:"name"`
	RateProvider string `yaml:"rate_provider"`
}

type fileRecord struct {
	ID                  int64      `yaml:"id"`
	VendorID            int64      `yaml:"vendor_id"`
	WarehouseID         int64      `yaml:"warehouse_id"`
	CarrierID           int64      `yaml:"carrier_id"`
	CountryID           int64      `yaml:"country_id"`
	StateProvinceID     int64      `yaml:"state_province_id"`
	Zip                 string     `yaml:"zip"`
	ShippingMethod      string     `yaml:"shipping_method"`
	WeightFrom          fileAmount `yaml:"weight_from"`
	WeightTo            fileAmount `yaml:"weight_to"`
	SubtotalFrom        fileAmount `yaml:"subtotal_from"`
	SubtotalTo          fileAmount `yaml:"subtotal_to"`
	AdditionalFixedCost fileAmount `yaml:"additional_fixed_cost"`
	RatePerWeightUnit   fileAmount `yaml:"rate_per_weight_unit"`
	LowerWeightLimit    fileAmount `yaml:"lower_weight_limit"`
	PercentageOfTotal   fileAmount `yaml:"percentage_rate_of_subtotal"`
	TransitDays         *int       `yaml:"transit_days"`
	DisplayOrder        int        `yaml:"display_order"`
}

type tableFile struct {
	Carriers []fileCarrier `yaml:"carriers"`
	Records  []fileRecord  `yaml:"records"`
}

// ParseFile decodes a YAML rate table document.
func ParseFile(data []byte) ([]Record, []Carrier, error) {
	var doc tableFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decoding rate table: %w", err)
	}

	carriers := make([]Carrier, 0, len(doc.Carriers))
	known := make(map[int64]struct{}, len(doc.Carriers))
	for _, c := range doc.Carriers {
		if c.ID == 0 || c.RateProvider == "" {
			return nil, nil, fmt.Errorf("carrier %q: id and rate_provider are required", c.Name)
		}
		known[c.ID] = struct{}{}
		carriers = append(carriers, Carrier{ID: c.ID, Name: c.Name, RateProviderSystemName: c.RateProvider})
	}

	records := make([]Record, 0, len(doc.Records))
	for i, r := range doc.Records {
		if _, ok := known[r.CarrierID]; !ok {
			return nil, nil, fmt.Errorf("record %d: unknown carrier_id %d", i, r.CarrierID)
		}
		id := r.ID
		if id == 0 {
			id = int64(i + 1)
		}
		records = append(records, Record{
			ID:                       id,
			VendorID:                 r.VendorID,
			WarehouseID:              r.WarehouseID,
			CarrierID:                r.CarrierID,
			CountryID:                r.CountryID,
			StateProvinceID:          r.StateProvinceID,
			Zip:                      r.Zip,
			ShippingMethodName:       r.ShippingMethod,
			WeightFrom:               r.WeightFrom.Decimal,
			WeightTo:                 r.WeightTo.Decimal,
			SubtotalFrom:             r.SubtotalFrom.Decimal,
			SubtotalTo:               r.SubtotalTo.Decimal,
			AdditionalFixedCost:      r.AdditionalFixedCost.Decimal,
			RatePerWeightUnit:        r.RatePerWeightUnit.Decimal,
			LowerWeightLimit:         r.LowerWeightLimit.Decimal,
			PercentageRateOfSubtotal: r.PercentageOfTotal.Decimal,
			TransitDays:              r.TransitDays,
			DisplayOrder:             r.DisplayOrder,
		})
	}
	return records, carriers, nil
}

// LoadFile reads a YAML rate table into a MemoryStore.
func LoadFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rate table: %w", err)
	}
	records, carriers, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewMemoryStore(records, carriers), nil
}
