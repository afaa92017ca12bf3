package server

import (
	"github.com/shopspring/decimal"
	"github.com/tournevent/shipquote/internal/quote"
)

type quoteRequest struct {
	Mode        string          `json:"mode" validate:"omitempty,oneof=by_product by_warehouse product warehouse"`
	Destination *destinationDTO `json:"destination" validate:"required"`
	Lines       []lineDTO       `json:"lines" validate:"required,dive"`
}

type destinationDTO struct {
	CountryID       int64  `json:"countryId" validate:"gte=0"`
	StateProvinceID int64  `json:"stateProvinceId" validate:"gte=0"`
	Zip             string `json:"zip" validate:"max=20"`
	County          string `json:"county"`
	City            string `json:"city"`
	CountryCode     string `json:"countryCode" validate:"omitempty,len=2,alpha"`
	ProvinceCode    string `json:"provinceCode" validate:"max=3"`
	Line1           string `json:"line1"`
	Name            string `json:"name"`
}

type lineDTO struct {
	ProductID          int64           `json:"productId" validate:"gt=0"`
	WarehouseID        int64           `json:"warehouseId" validate:"gte=0"`
	VendorID           int64           `json:"vendorId" validate:"gte=0"`
	Quantity           int             `json:"quantity" validate:"gte=0"`
	OverriddenQuantity *int            `json:"overriddenQuantity" validate:"omitempty,gt=0"`
	Weight             decimal.Decimal `json:"weight"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	FreeShipping       bool            `json:"freeShipping"`
	ShipSeparately     bool            `json:"shipSeparately"`
}

type quoteResponse struct {
	QuoteID                      string         `json:"quoteId"`
	Options                      []quote.Option `json:"options"`
	Errors                       []string       `json:"errors"`
	ShippedFromMultipleLocations bool           `json:"shippedFromMultipleLocations"`
}

type carriersResponse struct {
	Carriers []string `json:"carriers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (q *quoteRequest) toRequest() (*quote.Request, error) {
	req := &quote.Request{
		Lines: make([]quote.CartLine, len(q.Lines)),
		Destination: &quote.Destination{
			CountryID:       q.Destination.CountryID,
			StateProvinceID: q.Destination.StateProvinceID,
			Zip:             q.Destination.Zip,
			County:          q.Destination.County,
			City:            q.Destination.City,
			CountryCode:     q.Destination.CountryCode,
			ProvinceCode:    q.Destination.ProvinceCode,
			Line1:           q.Destination.Line1,
			Name:            q.Destination.Name,
		},
	}

	if q.Mode != "" {
		mode, err := quote.ParseMode(q.Mode)
		if err != nil {
			return nil, err
		}
		req.Mode = &mode
	}

	for i, l := range q.Lines {
		req.Lines[i] = quote.CartLine{
			ProductID:          l.ProductID,
			WarehouseID:        l.WarehouseID,
			VendorID:           l.VendorID,
			Quantity:           l.Quantity,
			OverriddenQuantity: l.OverriddenQuantity,
			Weight:             l.Weight,
			UnitPrice:          l.UnitPrice,
			FreeShipping:       l.FreeShipping,
			ShipSeparately:     l.ShipSeparately,
		}
	}
	return req, nil
}
