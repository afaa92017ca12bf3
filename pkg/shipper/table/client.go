// Package table provides a rate provider that prices nothing itself. Each
// requested service is quoted at zero so the configured rate record formula
// alone determines the charged rate.
package table

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tournevent/shipquote/pkg/shipper"
)

// SystemName is the registry name of the table provider.
const SystemName = "table"

// Config holds table provider configuration.
type Config struct {
	// DefaultServiceName is quoted when the request names no service.
	DefaultServiceName string
	Currency           string
}

// Client is the table-rate shipper.
type Client struct {
	config Config
}

// New creates a new table-rate provider.
func New(cfg Config) *Client {
	if cfg.DefaultServiceName == "" {
		cfg.DefaultServiceName = "Ground"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Client{config: cfg}
}

// Name returns the provider system name.
func (c *Client) Name() string {
	return SystemName
}

// GetQuote answers with one zero-priced option per requested service name.
func (c *Client) GetQuote(ctx context.Context, req *shipper.QuoteRequest) (*shipper.QuoteResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := req.Options.ServiceNames
	if len(names) == 0 {
		names = []string{c.config.DefaultServiceName}
	}

	seen := make(map[string]struct{}, len(names))
	rates := make([]shipper.RateOption, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		rates = append(rates, shipper.RateOption{
			RateID:      "table-" + uuid.New().String()[:8],
			Carrier:     SystemName,
			ServiceCode: strings.ToUpper(strings.ReplaceAll(key, " ", "_")),
			ServiceName: strings.TrimSpace(name),
			ServiceType: serviceTypeFor(key),
			TotalPrice:  shipper.Money{Amount: decimal.Zero, Currency: c.config.Currency},
		})
	}

	return &shipper.QuoteResponse{
		QuoteID:   "table-quote-" + uuid.New().String()[:8],
		Rates:     rates,
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}, nil
}

func serviceTypeFor(name string) shipper.ServiceType {
	switch {
	case strings.Contains(name, "express"):
		return shipper.ServiceExpress
	case strings.Contains(name, "overnight"), strings.Contains(name, "next day"):
		return shipper.ServiceOvernight
	case strings.Contains(name, "priority"):
		return shipper.ServicePriority
	case strings.Contains(name, "economy"):
		return shipper.ServiceEconomy
	case strings.Contains(name, "freight"):
		return shipper.ServiceFreight
	default:
		return shipper.ServiceStandard
	}
}

var _ shipper.Shipper = (*Client)(nil)
