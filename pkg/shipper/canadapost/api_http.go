package canadapost

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	rateNamespace = "http://www.canadapost.ca/ws/ship/rate-v4"
	rateMediaType = "application/vnd.cpc.ship.rate-v4+xml"
	ratePath      = "/rs/ship/price"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP/XML.
type HTTPAPIClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPAPIClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type mailingScenario struct {
	XMLName          xml.Name              `xml:"mailing-scenario"`
	Xmlns            string                `xml:"xmlns,attr"`
	CustomerNumber   string                `xml:"customer-number,omitempty"`
	ContractID       string                `xml:"contract-id,omitempty"`
	Parcel           parcelCharacteristics `xml:"parcel-characteristics"`
	OriginPostalCode string                `xml:"origin-postal-code"`
	Destination      xmlDestination        `xml:"destination"`
}

type parcelCharacteristics struct {
	Weight decimal.Decimal `xml:"weight"`
}

type xmlDestination struct {
	Domestic      *xmlPostal  `xml:"domestic,omitempty"`
	UnitedStates  *xmlZip     `xml:"united-states,omitempty"`
	International *xmlCountry `xml:"international,omitempty"`
}

type xmlPostal struct {
	PostalCode string `xml:"postal-code"`
}

type xmlZip struct {
	ZipCode string `xml:"zip-code"`
}

type xmlCountry struct {
	CountryCode string `xml:"country-code"`
}

type priceQuotes struct {
	XMLName    xml.Name     `xml:"price-quotes"`
	PriceQuote []priceQuote `xml:"price-quote"`
}

type priceQuote struct {
	ServiceCode     string          `xml:"service-code"`
	ServiceName     string          `xml:"service-name"`
	PriceDetails    priceDetails    `xml:"price-details"`
	ServiceStandard serviceStandard `xml:"service-standard"`
}

type priceDetails struct {
	Base        decimal.Decimal `xml:"base"`
	Taxes       priceTaxes      `xml:"taxes"`
	Due         decimal.Decimal `xml:"due"`
	Adjustments []adjustment    `xml:"adjustments>adjustment"`
}

type priceTaxes struct {
	GST decimal.Decimal `xml:"gst"`
	PST decimal.Decimal `xml:"pst"`
	HST decimal.Decimal `xml:"hst"`
}

type adjustment struct {
	Code string          `xml:"adjustment-code"`
	Cost decimal.Decimal `xml:"adjustment-cost"`
}

type serviceStandard struct {
	GuaranteedDelivery   bool   `xml:"guaranteed-delivery"`
	ExpectedTransitTime  int    `xml:"expected-transit-time"`
	ExpectedDeliveryDate string `xml:"expected-delivery-date"`
}

type messages struct {
	XMLName xml.Name  `xml:"messages"`
	Message []message `xml:"message"`
}

type message struct {
	Code        string `xml:"code"`
	Description string `xml:"description"`
}

// GetRates fetches shipping rates from the Canada Post API.
func (c *HTTPAPIClient) GetRates(ctx context.Context, req *RatesRequest) (*RatesResponse, error) {
	scenario := mailingScenario{
		Xmlns:            rateNamespace,
		CustomerNumber:   req.CustomerNumber,
		ContractID:       req.ContractID,
		Parcel:           parcelCharacteristics{Weight: req.WeightKG.Round(3)},
		OriginPostalCode: normalizePostalCode(req.OriginPostal),
	}

	switch d := req.Destination; {
	case d.Domestic != nil:
		scenario.Destination.Domestic = &xmlPostal{PostalCode: normalizePostalCode(d.Domestic.PostalCode)}
	case d.UnitedStates != nil:
		scenario.Destination.UnitedStates = &xmlZip{ZipCode: strings.TrimSpace(d.UnitedStates.ZipCode)}
	case d.International != nil:
		scenario.Destination.International = &xmlCountry{CountryCode: d.International.CountryCode}
	default:
		return nil, &APIError{Code: "NO_DESTINATION", Description: "destination is required"}
	}

	body, err := xml.Marshal(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.post(ctx, ratePath, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}

	var quotes priceQuotes
	if err := xml.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return convertQuotes(&quotes), nil
}

func convertQuotes(quotes *priceQuotes) *RatesResponse {
	rates := make([]Rate, len(quotes.PriceQuote))
	for i, q := range quotes.PriceQuote {
		fuel := decimal.Zero
		for _, adj := range q.PriceDetails.Adjustments {
			if adj.Code == "FUELSC" {
				fuel = adj.Cost
				break
			}
		}
		t := q.PriceDetails.Taxes

		rates[i] = Rate{
			ServiceCode:        q.ServiceCode,
			ServiceName:        q.ServiceName,
			BaseRate:           q.PriceDetails.Base,
			FuelSurcharge:      fuel,
			Taxes:              t.GST.Add(t.PST).Add(t.HST),
			TotalPrice:         q.PriceDetails.Due,
			ExpectedTransit:    q.ServiceStandard.ExpectedTransitTime,
			ExpectedDelivery:   q.ServiceStandard.ExpectedDeliveryDate,
			GuaranteedDelivery: q.ServiceStandard.GuaranteedDelivery,
		}
	}

	return &RatesResponse{
		QuoteID: "cp-quote-" + uuid.New().String()[:8],
		Rates:   rates,
	}
}

func (c *HTTPAPIClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.apiKey, c.apiSecret)
	req.Header.Set("Accept-Language", "en-CA")
	req.Header.Set("Content-Type", rateMediaType)
	req.Header.Set("Accept", rateMediaType)

	return c.httpClient.Do(req)
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var msgs messages
	if err := xml.Unmarshal(body, &msgs); err == nil && len(msgs.Message) > 0 {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        msgs.Message[0].Code,
			Description: msgs.Message[0].Description,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        fmt.Sprintf("HTTP_%d", resp.StatusCode),
		Description: strings.TrimSpace(string(body)),
	}
}

// normalizePostalCode upper-cases a postal code and strips its spaces.
func normalizePostalCode(pc string) string {
	return strings.ReplaceAll(strings.ToUpper(pc), " ", "")
}

var _ APIClient = (*HTTPAPIClient)(nil)
