// Package freightcom provides integration with the Freightcom rating API.
package freightcom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/shipquote/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SystemName is the registry name of the Freightcom provider.
const SystemName = "freightcom"

var poundsToKG = decimal.RequireFromString("0.45359237")

// Config holds Freightcom configuration.
type Config struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
	UseMock      bool
}

// Client is the Freightcom shipper client.
// It implements the shipper.Shipper interface and delegates
// API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Freightcom client.
// If cfg.UseMock is true, it uses a mock API client.
// Otherwise, it uses the real HTTP API client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			Timeout:      cfg.Timeout,
			PollInterval: cfg.PollInterval,
			PollTimeout:  cfg.PollTimeout,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Freightcom client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if tracer == nil {
		tracer = otel.Tracer("github.com/tournevent/shipquote/pkg/shipper/freightcom")
	}
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Name returns the provider system name.
func (c *Client) Name() string {
	return SystemName
}

// GetQuote returns shipping quotes from Freightcom. All packages travel in a
// single rate request.
func (c *Client) GetQuote(ctx context.Context, req *shipper.QuoteRequest) (*shipper.QuoteResponse, error) {
	ctx, span := c.tracer.Start(ctx, "freightcom.GetQuote",
		trace.WithAttributes(
			attribute.String("destination.country", req.Destination.CountryCode),
			attribute.Int("packages", len(req.Packages)),
		),
	)
	defer span.End()

	c.logger.Ctx(ctx).Debug("Getting Freightcom quotes",
		zap.String("origin_city", req.Origin.City),
		zap.String("destination_city", req.Destination.City),
		zap.Int("package_count", len(req.Packages)),
	)

	packages, err := packagesToAPI(req.Packages)
	if err != nil {
		return nil, err
	}

	apiReq := &RatesRequest{
		Details: ShippingDetails{
			Origin:      addressToLocation(req.Origin),
			Destination: addressToLocation(req.Destination),
			Packaging: PackagingInfo{
				Type:     "package",
				Packages: packages,
			},
			DeclaredValue: declaredValue(req.Packages),
		},
	}

	apiResp, err := c.apiClient.GetRates(ctx, apiReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Ctx(ctx).Warn("Freightcom API error", zap.Error(err))
		return nil, mapError(err)
	}

	resp := ratesResponseToShipper(apiResp)
	span.SetAttributes(attribute.Int("rates", len(resp.Rates)))
	return resp, nil
}

func addressToLocation(addr shipper.Address) Location {
	return Location{
		Name:       addr.Name,
		Address1:   addr.Line1,
		Address2:   addr.Line2,
		City:       addr.City,
		Province:   addr.ProvinceCode,
		PostalCode: addr.PostalCode,
		Country:    addr.CountryCode,
	}
}

func packagesToAPI(pkgs []shipper.Package) ([]Package, error) {
	if len(pkgs) == 0 {
		return nil, invalidPackage("at least one package is required")
	}

	out := make([]Package, len(pkgs))
	for i, p := range pkgs {
		weight := p.Weight
		if p.WeightUnit == shipper.WeightLB {
			weight = weight.Mul(poundsToKG)
		}
		if !weight.IsPositive() {
			return nil, invalidPackage("package weight must be positive")
		}
		out[i] = Package{
			Weight:   json.Number(weight.Round(2).String()),
			Quantity: 1,
		}
	}
	return out, nil
}

func declaredValue(pkgs []shipper.Package) *Amount {
	total := decimal.Zero
	currency := ""
	for _, p := range pkgs {
		total = total.Add(p.DeclaredValue)
		if currency == "" {
			currency = p.Currency
		}
	}
	if !total.IsPositive() {
		return nil
	}
	return &Amount{Value: json.Number(total.StringFixed(2)), Currency: currency}
}

func invalidPackage(msg string) error {
	return shipper.NewShipperError(SystemName, "INVALID_PACKAGE", msg).WithCause(shipper.ErrInvalidPackage)
}

func ratesResponseToShipper(resp *RatesResponse) *shipper.QuoteResponse {
	rates := make([]shipper.RateOption, len(resp.Rates))
	expiresAt := time.Now().Add(30 * time.Minute)
	for i, r := range resp.Rates {
		if t, err := time.Parse(time.RFC3339, r.ExpiresAt); err == nil && (i == 0 || t.Before(expiresAt)) {
			expiresAt = t
		}
		var estimatedDelivery *time.Time
		if r.EstimatedDelivery != "" {
			if t, err := time.Parse("2006-01-02", r.EstimatedDelivery); err == nil {
				estimatedDelivery = &t
			}
		}
		transit := r.TransitDays

		rates[i] = shipper.RateOption{
			RateID:            r.ID,
			Carrier:           SystemName,
			ServiceCode:       r.ServiceCode,
			ServiceName:       r.ServiceName,
			ServiceType:       mapServiceType(r.ServiceCode),
			TotalPrice:        shipper.Money{Amount: r.TotalPrice, Currency: r.Currency},
			TransitDays:       &transit,
			EstimatedDelivery: estimatedDelivery,
		}
	}

	return &shipper.QuoteResponse{
		QuoteID:   resp.RequestID,
		Rates:     rates,
		ExpiresAt: expiresAt,
	}
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return shipper.NewShipperError(SystemName, "TRANSPORT", "request failed").
			WithCause(err).WithRetryable(true)
	}

	se := shipper.NewShipperError(SystemName, apiErr.Code, apiErr.Message).WithStatusCode(apiErr.StatusCode)
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
		se.WithCause(shipper.ErrAuthenticationFailed)
	case apiErr.StatusCode == http.StatusTooManyRequests:
		se.WithCause(shipper.ErrRateLimitExceeded).WithRetryable(true)
	case apiErr.StatusCode >= http.StatusInternalServerError, apiErr.Code == "TIMEOUT":
		se.WithCause(shipper.ErrServiceUnavailable).WithRetryable(true)
	default:
		se.WithCause(apiErr)
	}
	return se
}

func mapServiceType(code string) shipper.ServiceType {
	switch code {
	case "GROUND", "STANDARD", "FEDEX_GROUND", "UPS_GROUND":
		return shipper.ServiceStandard
	case "EXPRESS", "FEDEX_EXPRESS_SAVER", "UPS_EXPRESS_SAVER":
		return shipper.ServiceExpress
	case "PRIORITY", "FEDEX_PRIORITY_OVERNIGHT", "UPS_NEXT_DAY_AIR":
		return shipper.ServicePriority
	case "OVERNIGHT", "FEDEX_STANDARD_OVERNIGHT":
		return shipper.ServiceOvernight
	case "ECONOMY", "FEDEX_ECONOMY":
		return shipper.ServiceEconomy
	case "FREIGHT", "LTL":
		return shipper.ServiceFreight
	default:
		return shipper.ServiceStandard
	}
}

var _ shipper.Shipper = (*Client)(nil)
