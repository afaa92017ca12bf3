// Package canadapost provides integration with the Canada Post rating API.
package canadapost

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tournevent/shipquote/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SystemName is the registry name of the Canada Post provider.
const SystemName = "canadapost"

const currency = "CAD"

var poundsToKG = decimal.RequireFromString("0.45359237")

// Config holds Canada Post configuration.
type Config struct {
	APIKey         string
	APISecret      string
	CustomerNumber string
	ContractID     string
	BaseURL        string
	Timeout        time.Duration
	UseMock        bool
}

// Client is the Canada Post shipper client.
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Canada Post client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			Timeout:   cfg.Timeout,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Canada Post client with a custom API client.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if tracer == nil {
		tracer = otel.Tracer("github.com/tournevent/shipquote/pkg/shipper/canadapost")
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

// GetQuote prices every package separately and sums the results per service.
// A service is only offered when it was quoted for every package.
func (c *Client) GetQuote(ctx context.Context, req *shipper.QuoteRequest) (*shipper.QuoteResponse, error) {
	ctx, span := c.tracer.Start(ctx, "canadapost.GetQuote",
		trace.WithAttributes(
			attribute.String("destination.country", req.Destination.CountryCode),
			attribute.Int("packages", len(req.Packages)),
		),
	)
	defer span.End()

	c.logger.Ctx(ctx).Debug("Getting Canada Post quotes",
		zap.String("origin_postal", req.Origin.PostalCode),
		zap.String("destination_postal", req.Destination.PostalCode),
		zap.Int("package_count", len(req.Packages)),
	)

	if len(req.Packages) == 0 {
		return nil, invalidPackage("at least one package is required")
	}

	dest, err := destinationFor(req.Destination)
	if err != nil {
		return nil, err
	}

	var totals []shipper.RateOption
	for i, pkg := range req.Packages {
		weight := weightKG(pkg)
		if !weight.IsPositive() {
			return nil, invalidPackage("package weight must be positive")
		}

		apiResp, err := c.apiClient.GetRates(ctx, &RatesRequest{
			CustomerNumber: c.config.CustomerNumber,
			ContractID:     c.config.ContractID,
			OriginPostal:   req.Origin.PostalCode,
			WeightKG:       weight,
			Destination:    dest,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Ctx(ctx).Warn("Canada Post API error", zap.Int("package", i), zap.Error(err))
			return nil, mapError(err)
		}

		rates := ratesToShipper(apiResp.Rates)
		if i == 0 {
			totals = rates
			continue
		}
		totals = mergeRates(totals, rates)
	}

	span.SetAttributes(attribute.Int("rates", len(totals)))

	return &shipper.QuoteResponse{
		QuoteID:   "cp-quote-" + uuid.New().String()[:8],
		Rates:     totals,
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}, nil
}

func destinationFor(addr shipper.Address) (Destination, error) {
	switch strings.ToUpper(strings.TrimSpace(addr.CountryCode)) {
	case "", "CA":
		if addr.PostalCode == "" {
			return Destination{}, shipper.NewShipperError(SystemName, "INVALID_ADDRESS", "postal code is required").
				WithCause(shipper.ErrInvalidAddress)
		}
		return Destination{Domestic: &DomesticDestination{PostalCode: addr.PostalCode}}, nil
	case "US":
		return Destination{UnitedStates: &UnitedStatesDestination{ZipCode: addr.PostalCode}}, nil
	default:
		return Destination{International: &InternationalDestination{CountryCode: strings.ToUpper(addr.CountryCode)}}, nil
	}
}

func weightKG(pkg shipper.Package) decimal.Decimal {
	if pkg.WeightUnit == shipper.WeightLB {
		return pkg.Weight.Mul(poundsToKG)
	}
	return pkg.Weight
}

func invalidPackage(msg string) error {
	return shipper.NewShipperError(SystemName, "INVALID_PACKAGE", msg).WithCause(shipper.ErrInvalidPackage)
}

func ratesToShipper(rates []Rate) []shipper.RateOption {
	out := make([]shipper.RateOption, len(rates))
	for i, r := range rates {
		transit := r.ExpectedTransit
		var delivery *time.Time
		if t, err := time.Parse("2006-01-02", r.ExpectedDelivery); err == nil {
			delivery = &t
		}

		out[i] = shipper.RateOption{
			RateID:            "cp-" + r.ServiceCode + "-" + uuid.New().String()[:8],
			Carrier:           SystemName,
			ServiceCode:       r.ServiceCode,
			ServiceName:       r.ServiceName,
			ServiceType:       mapServiceType(r.ServiceCode),
			TotalPrice:        shipper.Money{Amount: r.TotalPrice, Currency: currency},
			TransitDays:       &transit,
			EstimatedDelivery: delivery,
		}
	}
	return out
}

// mergeRates adds next into totals by service code, dropping services
// missing from either side.
func mergeRates(totals, next []shipper.RateOption) []shipper.RateOption {
	byCode := make(map[string]shipper.RateOption, len(next))
	for _, r := range next {
		byCode[r.ServiceCode] = r
	}

	merged := totals[:0]
	for _, t := range totals {
		n, ok := byCode[t.ServiceCode]
		if !ok {
			continue
		}
		t.TotalPrice.Amount = t.TotalPrice.Amount.Add(n.TotalPrice.Amount)
		if n.TransitDays != nil && (t.TransitDays == nil || *n.TransitDays > *t.TransitDays) {
			days := *n.TransitDays
			t.TransitDays = &days
			t.EstimatedDelivery = n.EstimatedDelivery
		}
		merged = append(merged, t)
	}
	return merged
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
	case apiErr.StatusCode == http.StatusTooManyRequests:
		se.WithCause(shipper.ErrRateLimitExceeded).WithRetryable(true)
	case apiErr.StatusCode >= http.StatusInternalServerError:
		se.WithCause(shipper.ErrServiceUnavailable).WithRetryable(true)
	default:
		se.WithCause(apiErr)
	}
	return se
}

func mapServiceType(code string) shipper.ServiceType {
	switch code {
	case "DOM.RP", "USA.TP", "INT.TP":
		return shipper.ServiceStandard
	case "DOM.XP", "DOM.EP", "USA.XP", "INT.XP":
		return shipper.ServiceExpress
	case "DOM.PC", "USA.PW.PARCEL", "INT.PW.PARCEL":
		return shipper.ServicePriority
	case "USA.SP.AIR", "INT.SP.AIR", "INT.IP.AIR":
		return shipper.ServiceEconomy
	default:
		return shipper.ServiceStandard
	}
}

var _ shipper.Shipper = (*Client)(nil)
