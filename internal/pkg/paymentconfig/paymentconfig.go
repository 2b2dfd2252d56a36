package paymentconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mercadito/tienda/internal/pkg/env"
)

// Payment modes accepted in payment.json.
const (
	ModeSandbox    = "sandbox"
	ModeProduction = "production"
)

// WebhookSecurity holds the toggles for the webhook verification chain.
// Disabling validate_signature is an explicit escape hatch for environments
// without a secret yet; the admin panel warns the operator that it is unsafe.
type WebhookSecurity struct {
	ValidateSignature      bool `json:"validate_signature"`
	ValidateTimestamp      bool `json:"validate_timestamp"`
	ValidateIP             bool `json:"validate_ip"`
	MaxTimestampAgeMinutes int  `json:"max_timestamp_age_minutes" validate:"min=0"`
}

// MercadopagoConfig is the provider section of payment.json.
type MercadopagoConfig struct {
	Enabled         bool            `json:"enabled"`
	Mode            string          `json:"mode" validate:"required,oneof=sandbox production"`
	WebhookSecurity WebhookSecurity `json:"webhook_security"`
	// AllowedCIDRs overrides the built-in provider ranges when set.
	AllowedCIDRs []string `json:"allowed_cidrs,omitempty"`
}

// Config is the full parsed payment.json.
type Config struct {
	Mercadopago MercadopagoConfig `json:"mercadopago"`
}

// ModeCredentials are the provider secrets for one mode. They live in a
// credentials file outside the webroot and never reach the HTTP layer.
type ModeCredentials struct {
	AccessToken   string `json:"access_token" validate:"required"`
	WebhookSecret string `json:"webhook_secret"`
}

// Credentials holds per-mode provider secrets.
type Credentials struct {
	Sandbox    ModeCredentials `json:"sandbox"`
	Production ModeCredentials `json:"production"`
}

// ForMode returns the credentials matching a payment mode.
func (c *Credentials) ForMode(mode string) (ModeCredentials, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeSandbox:
		return c.Sandbox, nil
	case ModeProduction:
		return c.Production, nil
	default:
		return ModeCredentials{}, fmt.Errorf("unknown payment mode: %q", mode)
	}
}

var validate = validator.New()

// Load reads payment.json from the configured path. The result is an
// immutable snapshot; callers pass it into the webhook pipeline per request
// instead of reading ambient state.
func Load() (*Config, error) {
	path := env.GetEnv("PAYMENT_CONFIG_FILE", "config/payment.json")
	return LoadFile(path)
}

// LoadFile reads and validates a payment configuration file.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payment config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse payment config: %w", err)
	}
	if cfg.Mercadopago.Mode == "" {
		cfg.Mercadopago.Mode = ModeSandbox
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid payment config: %w", err)
	}
	return &cfg, nil
}

// LoadCredentials reads the credentials file. The path itself is
// configuration (PAYMENT_CREDENTIALS_FILE) and must point outside the
// webroot; there is no hardcoded default location on purpose.
func LoadCredentials() (*Credentials, error) {
	path := strings.TrimSpace(env.GetEnv("PAYMENT_CREDENTIALS_FILE", ""))
	if path == "" {
		return nil, errors.New("PAYMENT_CREDENTIALS_FILE is not configured")
	}
	return LoadCredentialsFile(path)
}

// LoadCredentialsFile reads and validates a credentials file.
func LoadCredentialsFile(path string) (*Credentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payment credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("parse payment credentials: %w", err)
	}
	return &creds, nil
}
