package purolator

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const estimatingPath = "/EWS/V2/Estimating/EstimatingService.asmx"

// SOAPAPIClient is the production implementation of APIClient using SOAP.
type SOAPAPIClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// SOAPAPIClientConfig holds configuration for the SOAP client.
type SOAPAPIClientConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// NewSOAPAPIClient creates a new SOAP-based API client for production use.
func NewSOAPAPIClient(cfg SOAPAPIClientConfig) *SOAPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &SOAPAPIClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetRates fetches shipping rates from the Purolator EstimatingService.
func (c *SOAPAPIClient) GetRates(ctx context.Context, req *RatesRequest) (*RatesResponse, error) {
	var body bytes.Buffer
	if err := estimateTemplate.Execute(&body, estimateData{
		RequestRef: "req-" + uuid.New().String()[:8],
		Req:        req,
	}); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.doSOAPRequest(ctx, c.baseURL+estimatingPath, "GetFullEstimate", body.Bytes())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseSOAPError(resp)
	}

	return parseRatesResponse(resp.Body)
}

func (c *SOAPAPIClient) doSOAPRequest(ctx context.Context, endpoint, action string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://purolator.com/pws/service/v2/"+action)

	return c.httpClient.Do(req)
}

type estimateData struct {
	RequestRef string
	Req        *RatesRequest
}

var estimateTemplate = template.Must(template.New("estimate").Parse(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:v2="http://purolator.com/pws/datatypes/v2">
  <soap:Header>
    <v2:RequestContext>
      <v2:Version>2.2</v2:Version>
      <v2:Language>en</v2:Language>
      <v2:GroupID>shipquote</v2:GroupID>
      <v2:RequestReference>{{.RequestRef}}</v2:RequestReference>
    </v2:RequestContext>
  </soap:Header>
  <soap:Body>
    <v2:GetFullEstimateRequest>
      <v2:Shipment>
        <v2:SenderInformation>
          <v2:Address>
            <v2:PostalCode>{{html .Req.SenderPostalCode}}</v2:PostalCode>
            <v2:Country>CA</v2:Country>
          </v2:Address>
        </v2:SenderInformation>
        <v2:ReceiverInformation>
          <v2:Address>
            <v2:City>{{html .Req.ReceiverAddress.City}}</v2:City>
            <v2:Province>{{html .Req.ReceiverAddress.Province}}</v2:Province>
            <v2:PostalCode>{{html .Req.ReceiverAddress.PostalCode}}</v2:PostalCode>
            <v2:Country>{{html .Req.ReceiverAddress.Country}}</v2:Country>
          </v2:Address>
        </v2:ReceiverInformation>
        <v2:PackageInformation>
          <v2:TotalWeight>
            <v2:Value>{{.Req.PackageInformation.TotalWeight.Value.String}}</v2:Value>
            <v2:WeightUnit>{{.Req.PackageInformation.TotalWeight.Unit}}</v2:WeightUnit>
          </v2:TotalWeight>
          <v2:TotalPieces>{{.Req.PackageInformation.TotalPieces}}</v2:TotalPieces>
        </v2:PackageInformation>
        <v2:PaymentInformation>
          <v2:PaymentType>Sender</v2:PaymentType>
          <v2:RegisteredAccountNumber>{{html .Req.BillingAccountNumber}}</v2:RegisteredAccountNumber>
        </v2:PaymentInformation>
      </v2:Shipment>
      <v2:ShowAlternativeServicesIndicator>true</v2:ShowAlternativeServicesIndicator>
    </v2:GetFullEstimateRequest>
  </soap:Body>
</soap:Envelope>`))

type soapEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    soapBody `xml:"Body"`
}

type soapBody struct {
	Fault                   *soapFault               `xml:"Fault,omitempty"`
	GetFullEstimateResponse *getFullEstimateResponse `xml:"GetFullEstimateResponse,omitempty"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type getFullEstimateResponse struct {
	ResponseInformation responseInfo      `xml:"ResponseInformation"`
	ShipmentEstimates   shipmentEstimates `xml:"ShipmentEstimates"`
}

type responseInfo struct {
	Errors []responseError `xml:"Errors>Error"`
}

type responseError struct {
	Code        string `xml:"Code"`
	Description string `xml:"Description"`
}

type shipmentEstimates struct {
	ShipmentEstimate []shipmentEstimate `xml:"ShipmentEstimate"`
}

type shipmentEstimate struct {
	ServiceID            string          `xml:"ServiceID"`
	ExpectedDeliveryDate string          `xml:"ExpectedDeliveryDate"`
	EstimatedTransitDays int             `xml:"EstimatedTransitDays"`
	BasePrice            decimal.Decimal `xml:"BasePrice"`
	Surcharges           []soapCharge    `xml:"Surcharges>Surcharge"`
	Taxes                []soapCharge    `xml:"Taxes>Tax"`
	TotalPrice           decimal.Decimal `xml:"TotalPrice"`
}

type soapCharge struct {
	Amount decimal.Decimal `xml:"Amount"`
	Type   string          `xml:"Type"`
}

func parseSOAPError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var env soapEnvelope
	if err := xml.Unmarshal(body, &env); err == nil && env.Body.Fault != nil {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        env.Body.Fault.Code,
			Description: env.Body.Fault.String,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        fmt.Sprintf("HTTP_%d", resp.StatusCode),
		Description: strings.TrimSpace(string(body)),
	}
}

func parseRatesResponse(body io.Reader) (*RatesResponse, error) {
	var env soapEnvelope
	if err := xml.NewDecoder(body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if env.Body.Fault != nil {
		return nil, &APIError{
			Code:        env.Body.Fault.Code,
			Description: env.Body.Fault.String,
		}
	}

	if env.Body.GetFullEstimateResponse == nil {
		return nil, &APIError{
			Code:        "PARSE_ERROR",
			Description: "no rate estimates in response",
		}
	}

	resp := env.Body.GetFullEstimateResponse
	if len(resp.ResponseInformation.Errors) > 0 {
		e := resp.ResponseInformation.Errors[0]
		return nil, &APIError{
			Code:        e.Code,
			Description: e.Description,
		}
	}

	rates := make([]ShipmentRate, len(resp.ShipmentEstimates.ShipmentEstimate))
	for i, est := range resp.ShipmentEstimates.ShipmentEstimate {
		fuel := decimal.Zero
		for _, sc := range est.Surcharges {
			if sc.Type == "Fuel" || sc.Type == "FuelSurcharge" {
				fuel = fuel.Add(sc.Amount)
			}
		}

		taxes := decimal.Zero
		for _, tax := range est.Taxes {
			taxes = taxes.Add(tax.Amount)
		}

		rates[i] = ShipmentRate{
			ServiceCode:          est.ServiceID,
			ServiceName:          serviceName(est.ServiceID),
			BasePrice:            est.BasePrice,
			FuelSurcharge:        fuel,
			Taxes:                taxes,
			TotalPrice:           est.TotalPrice,
			ExpectedDeliveryDate: est.ExpectedDeliveryDate,
			EstimatedTransitDays: est.EstimatedTransitDays,
			GuaranteedDelivery:   guaranteedServices[est.ServiceID],
		}
	}

	return &RatesResponse{
		QuoteID:       "puro-quote-" + uuid.New().String()[:8],
		ShipmentRates: rates,
	}, nil
}

var serviceNames = map[string]string{
	"PurolatorExpress":        "Purolator Express",
	"PurolatorExpress9AM":     "Purolator Express 9AM",
	"PurolatorExpress10:30AM": "Purolator Express 10:30AM",
	"PurolatorExpress12PM":    "Purolator Express 12PM",
	"PurolatorExpressEvening": "Purolator Express Evening",
	"PurolatorGround":         "Purolator Ground",
	"PurolatorGround9AM":      "Purolator Ground 9AM",
	"PurolatorGround10:30AM":  "Purolator Ground 10:30AM",
	"PurolatorExpressUS":      "Purolator Express U.S.",
	"PurolatorExpressUSPack":  "Purolator Express U.S. Pack",
	"PurolatorGroundUS":       "Purolator Ground U.S.",
}

var guaranteedServices = map[string]bool{
	"PurolatorExpress":        true,
	"PurolatorExpress9AM":     true,
	"PurolatorExpress10:30AM": true,
	"PurolatorExpress12PM":    true,
	"PurolatorExpressEvening": true,
	"PurolatorExpressUS":      true,
}

func serviceName(serviceID string) string {
	if name, ok := serviceNames[serviceID]; ok {
		return name
	}
	return serviceID
}

var _ APIClient = (*SOAPAPIClient)(nil)
