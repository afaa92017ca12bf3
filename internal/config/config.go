package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/tournevent/shipquote/internal/quote"
	"github.com/tournevent/shipquote/pkg/shipper"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"80"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Engine
	ProcessingMode           string        `envconfig:"PROCESSING_MODE" default:"by_product"`
	ReturnValidOptionsIfAny  bool          `envconfig:"RETURN_VALID_OPTIONS_IF_ANY" default:"true"`
	LimitMethodsToConfigured bool          `envconfig:"LIMIT_METHODS_TO_CONFIGURED" default:"false"`
	FreeShippingOptionName   string        `envconfig:"FREE_SHIPPING_OPTION_NAME" default:"Free shipping"`
	CombineConnector         string        `envconfig:"COMBINE_CONNECTOR" default:" + "`
	MaxConcurrentCarriers    int           `envconfig:"MAX_CONCURRENT_CARRIERS" default:"4"`
	WeightUnit               string        `envconfig:"WEIGHT_UNIT" default:"kg"`
	Currency                 string        `envconfig:"CURRENCY" default:"CAD"`
	QuoteTimeout             time.Duration `envconfig:"QUOTE_TIMEOUT" default:"20s"`

	// Rate table
	DatabaseDSN   string `envconfig:"DATABASE_DSN"`
	RateTableFile string `envconfig:"RATE_TABLE_FILE"`

	// Origin
	OriginName         string           `envconfig:"ORIGIN_NAME"`
	OriginLine1        string           `envconfig:"ORIGIN_LINE1"`
	OriginCity         string           `envconfig:"ORIGIN_CITY"`
	OriginProvinceCode string           `envconfig:"ORIGIN_PROVINCE_CODE"`
	OriginPostalCode   string           `envconfig:"ORIGIN_POSTAL_CODE"`
	OriginCountryCode  string           `envconfig:"ORIGIN_COUNTRY_CODE" default:"CA"`
	WarehousePostal    map[int64]string `envconfig:"WAREHOUSE_POSTAL_CODES"`

	// Table rates
	TableRatesEnabled bool `envconfig:"TABLE_RATES_ENABLED" default:"true"`

	// Freightcom
	FreightcomAPIKey  string `envconfig:"FREIGHTCOM_API_KEY"`
	FreightcomBaseURL string `envconfig:"FREIGHTCOM_BASE_URL" default:"https://external-api.freightcom.com"`
	FreightcomEnabled bool   `envconfig:"FREIGHTCOM_ENABLED" default:"false"`
	FreightcomUseMock bool   `envconfig:"FREIGHTCOM_USE_MOCK" default:"false"`

	// Canada Post
	CanadaPostAPIKey         string `envconfig:"CANADAPOST_API_KEY"`
	CanadaPostAPISecret      string `envconfig:"CANADAPOST_API_SECRET"`
	CanadaPostCustomerNumber string `envconfig:"CANADAPOST_CUSTOMER_NUMBER"`
	CanadaPostContractID     string `envconfig:"CANADAPOST_CONTRACT_ID"`
	CanadaPostBaseURL        string `envconfig:"CANADAPOST_BASE_URL" default:"https://soa-gw.canadapost.ca"`
	CanadaPostEnabled        bool   `envconfig:"CANADAPOST_ENABLED" default:"false"`
	CanadaPostUseMock        bool   `envconfig:"CANADAPOST_USE_MOCK" default:"false"`

	// Purolator
	PurolatorUsername      string `envconfig:"PUROLATOR_USERNAME"`
	PurolatorPassword      string `envconfig:"PUROLATOR_PASSWORD"`
	PurolatorAccountNumber string `envconfig:"PUROLATOR_ACCOUNT_NUMBER"`
	PurolatorBaseURL       string `envconfig:"PUROLATOR_BASE_URL" default:"https://webservices.purolator.com"`
	PurolatorEnabled       bool   `envconfig:"PUROLATOR_ENABLED" default:"false"`
	PurolatorUseMock       bool   `envconfig:"PUROLATOR_USE_MOCK" default:"false"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"shipquote"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables. Variables from the
// given dotenv files are applied first without overriding the environment;
// missing files are skipped.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if _, err := cfg.Mode(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// Mode returns the parsed processing mode.
func (c *Config) Mode() (quote.Mode, error) {
	return quote.ParseMode(c.ProcessingMode)
}

// Origin returns the default ship-from address.
func (c *Config) Origin() shipper.Address {
	return shipper.Address{
		Name:         c.OriginName,
		Line1:        c.OriginLine1,
		City:         c.OriginCity,
		ProvinceCode: c.OriginProvinceCode,
		PostalCode:   c.OriginPostalCode,
		CountryCode:  c.OriginCountryCode,
	}
}

// Origins returns the default origin plus one origin per configured warehouse
// postal code.
func (c *Config) Origins() quote.StaticOrigins {
	origins := quote.StaticOrigins{
		Default:    c.Origin(),
		Warehouses: make(map[int64]shipper.Address, len(c.WarehousePostal)),
	}
	for id, postal := range c.WarehousePostal {
		addr := c.Origin()
		addr.PostalCode = postal
		origins.Warehouses[id] = addr
	}
	return origins
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("quote.mode", c.ProcessingMode),
		attribute.Bool("table.enabled", c.TableRatesEnabled),
		attribute.Bool("freightcom.enabled", c.FreightcomEnabled),
		attribute.Bool("canadapost.enabled", c.CanadaPostEnabled),
		attribute.Bool("purolator.enabled", c.PurolatorEnabled),
	}
}
