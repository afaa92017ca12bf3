// Package mock provides a mock shipper implementation for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tournevent/shipquote/pkg/shipper"
)

// Client is a mock shipper for testing. With no rates configured it answers
// with a Standard and an Express option.
type Client struct {
	name   string
	rates  []shipper.RateOption
	err    error
	errors []string

	// OnGetQuote, when set, replaces the canned behaviour.
	OnGetQuote func(ctx context.Context, req *shipper.QuoteRequest) (*shipper.QuoteResponse, error)

	mu       sync.Mutex
	requests []*shipper.QuoteRequest
}

// New creates a new mock shipper.
func New(name string) *Client {
	return &Client{name: name}
}

// WithRate appends a rate option the mock will quote.
func (c *Client) WithRate(serviceName string, serviceType shipper.ServiceType, amount string, transitDays int) *Client {
	days := transitDays
	c.rates = append(c.rates, shipper.RateOption{
		Carrier:     c.name,
		ServiceCode: serviceName,
		ServiceName: serviceName,
		ServiceType: serviceType,
		TotalPrice:  shipper.Money{Amount: decimal.RequireFromString(amount), Currency: "USD"},
		TransitDays: &days,
	})
	return c
}

// WithError makes every GetQuote call fail with err.
func (c *Client) WithError(err error) *Client {
	c.err = err
	return c
}

// WithRejection makes every GetQuote call answer unsuccessfully with messages.
func (c *Client) WithRejection(messages ...string) *Client {
	c.errors = messages
	return c
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return c.name
}

// Requests returns the requests received so far.
func (c *Client) Requests() []*shipper.QuoteRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*shipper.QuoteRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// GetQuote returns mock shipping quotes.
func (c *Client) GetQuote(ctx context.Context, req *shipper.QuoteRequest) (*shipper.QuoteResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.OnGetQuote != nil {
		return c.OnGetQuote(ctx, req)
	}
	if c.err != nil {
		return nil, c.err
	}

	now := time.Now()
	resp := &shipper.QuoteResponse{
		QuoteID:   fmt.Sprintf("%s-quote-%s", c.name, uuid.New().String()[:8]),
		ExpiresAt: now.Add(30 * time.Minute),
	}
	if len(c.errors) > 0 {
		resp.Errors = append(resp.Errors, c.errors...)
		return resp, nil
	}

	rates := c.rates
	if len(rates) == 0 {
		rates = c.defaultRates()
	}
	for _, r := range rates {
		r.RateID = fmt.Sprintf("%s-rate-%s", c.name, uuid.New().String()[:8])
		resp.Rates = append(resp.Rates, r)
	}
	return resp, nil
}

func (c *Client) defaultRates() []shipper.RateOption {
	standardDays, expressDays := 5, 2
	return []shipper.RateOption{
		{
			Carrier:     c.name,
			ServiceCode: "STANDARD",
			ServiceName: "Standard",
			ServiceType: shipper.ServiceStandard,
			TotalPrice:  shipper.Money{Amount: decimal.RequireFromString("15.82"), Currency: "USD"},
			TransitDays: &standardDays,
		},
		{
			Carrier:     c.name,
			ServiceCode: "EXPRESS",
			ServiceName: "Express",
			ServiceType: shipper.ServiceExpress,
			TotalPrice:  shipper.Money{Amount: decimal.RequireFromString("29.95"), Currency: "USD"},
			TransitDays: &expressDays,
		},
	}
}

var _ shipper.Shipper = (*Client)(nil)
