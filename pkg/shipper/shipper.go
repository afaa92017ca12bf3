// Package shipper provides an abstraction layer for shipping rate providers.
package shipper

import (
	"context"
)

// Shipper defines the rate-lookup capability every carrier must implement.
// The aggregation engine treats all implementations uniformly.
type Shipper interface {
	// Name returns the rate provider system name (e.g., "freightcom", "canadapost", "table").
	Name() string

	// GetQuote returns shipping rate quotes for a single package request.
	// A transport failure is returned as an error; carrier-side rejections
	// may instead be reported through QuoteResponse.Errors.
	GetQuote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error)
}
