// Package purolator provides integration with the Purolator estimating API.
package purolator

import (
	"context"
	"errors"
	"net/http"
	"strings"
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

// SystemName is the registry name of the Purolator provider.
const SystemName = "purolator"

const currency = "CAD"

var kgToPounds = decimal.RequireFromString("2.20462262")

// Config holds Purolator configuration.
type Config struct {
	Username      string
	Password      string
	AccountNumber string
	BaseURL       string
	Timeout       time.Duration
	UseMock       bool
}

// Client is the Purolator API client.
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Purolator client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewSOAPAPIClient(SOAPAPIClientConfig{
			BaseURL:  cfg.BaseURL,
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  cfg.Timeout,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Purolator client with a custom API client.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if tracer == nil {
		tracer = otel.Tracer("github.com/tournevent/shipquote/pkg/shipper/purolator")
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

// GetQuote returns shipping quotes from Purolator. Packages are estimated as
// one shipment with their total weight in whole pounds.
func (c *Client) GetQuote(ctx context.Context, req *shipper.QuoteRequest) (*shipper.QuoteResponse, error) {
	ctx, span := c.tracer.Start(ctx, "purolator.GetQuote",
		trace.WithAttributes(
			attribute.String("destination.country", req.Destination.CountryCode),
			attribute.Int("packages", len(req.Packages)),
		),
	)
	defer span.End()

	c.logger.Ctx(ctx).Debug("Getting Purolator quotes",
		zap.String("origin_postal", req.Origin.PostalCode),
		zap.String("destination_postal", req.Destination.PostalCode),
		zap.Int("package_count", len(req.Packages)),
	)

	if len(req.Packages) == 0 {
		return nil, invalidPackage("at least one package is required")
	}

	total := decimal.Zero
	for _, pkg := range req.Packages {
		total = total.Add(pounds(pkg))
	}
	if !total.IsPositive() {
		return nil, invalidPackage("package weight must be positive")
	}

	apiReq := &RatesRequest{
		BillingAccountNumber: c.config.AccountNumber,
		SenderPostalCode:     req.Origin.PostalCode,
		ReceiverAddress: Address{
			City:       req.Destination.City,
			Province:   req.Destination.ProvinceCode,
			PostalCode: req.Destination.PostalCode,
			Country:    req.Destination.CountryCode,
		},
		PackageInformation: PackageInformation{
			TotalWeight: Weight{Value: total.Ceil(), Unit: "lb"},
			TotalPieces: len(req.Packages),
		},
	}

	apiResp, err := c.apiClient.GetRates(ctx, apiReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Ctx(ctx).Warn("Purolator API error", zap.Error(err))
		return nil, mapError(err)
	}

	resp := ratesResponseToShipper(apiResp)
	span.SetAttributes(attribute.Int("rates", len(resp.Rates)))
	return resp, nil
}

func pounds(pkg shipper.Package) decimal.Decimal {
	if pkg.WeightUnit == shipper.WeightLB {
		return pkg.Weight
	}
	return pkg.Weight.Mul(kgToPounds)
}

func invalidPackage(msg string) error {
	return shipper.NewShipperError(SystemName, "INVALID_PACKAGE", msg).WithCause(shipper.ErrInvalidPackage)
}

func ratesResponseToShipper(resp *RatesResponse) *shipper.QuoteResponse {
	rates := make([]shipper.RateOption, len(resp.ShipmentRates))
	for i, r := range resp.ShipmentRates {
		transit := r.EstimatedTransitDays
		var delivery *time.Time
		if t, err := time.Parse("2006-01-02", r.ExpectedDeliveryDate); err == nil {
			delivery = &t
		}

		rates[i] = shipper.RateOption{
			RateID:            "puro-" + r.ServiceCode,
			Carrier:           SystemName,
			ServiceCode:       r.ServiceCode,
			ServiceName:       r.ServiceName,
			ServiceType:       mapServiceType(r.ServiceCode),
			TotalPrice:        shipper.Money{Amount: r.TotalPrice, Currency: currency},
			TransitDays:       &transit,
			EstimatedDelivery: delivery,
		}
	}

	return &shipper.QuoteResponse{
		QuoteID:   resp.QuoteID,
		Rates:     rates,
		ExpiresAt: time.Now().Add(30 * time.Minute),
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

	se := shipper.NewShipperError(SystemName, apiErr.Code, apiErr.Description).WithStatusCode(apiErr.StatusCode)
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
		se.WithCause(shipper.ErrAuthenticationFailed)
	case apiErr.StatusCode >= http.StatusInternalServerError && strings.HasPrefix(apiErr.Code, "HTTP_"):
		se.WithCause(shipper.ErrServiceUnavailable).WithRetryable(true)
	default:
		se.WithCause(apiErr)
	}
	return se
}

func mapServiceType(code string) shipper.ServiceType {
	switch code {
	case "PurolatorGround", "PurolatorGroundUS":
		return shipper.ServiceStandard
	case "PurolatorExpress", "PurolatorExpressUS", "PurolatorExpressUSPack", "PurolatorExpressEvening":
		return shipper.ServiceExpress
	case "PurolatorExpress9AM", "PurolatorExpress10:30AM", "PurolatorExpress12PM":
		return shipper.ServiceOvernight
	default:
		return shipper.ServiceStandard
	}
}

var _ shipper.Shipper = (*Client)(nil)
