package anet

import (
	"strings"

	"github.com/membergate/membergate/internal/pkg/env"
)

const (
	productionEndpoint = "https://api.authorize.net/xml/v1/request.api"
	sandboxEndpoint    = "https://apitest.authorize.net/xml/v1/request.api"
)

// Config carries the Authorize.net account credentials. The signature key
// plays a double role: the webhook signature treats it as UTF-8 text, the
// transaction integrity hash uses its hex-decoded bytes. Both uses are
// dictated by Authorize.net and must not be unified.
type Config struct {
	APILoginID     string
	TransactionKey string
	SignatureKey   string
	Sandbox        bool
}

// NewConfigFromEnv selects sandbox or live credentials based on ANET_SANDBOX.
func NewConfigFromEnv() Config {
	sandbox := strings.EqualFold(env.GetEnv("ANET_SANDBOX", "false"), "true")

	if sandbox {
		return Config{
			APILoginID:     strings.TrimSpace(env.GetEnv("ANET_TEST_API_LOGIN_ID", "")),
			TransactionKey: strings.TrimSpace(env.GetEnv("ANET_TEST_TRANSACTION_KEY", "")),
			SignatureKey:   strings.TrimSpace(env.GetEnv("ANET_TEST_SIGNATURE_KEY", "")),
			Sandbox:        true,
		}
	}

	return Config{
		APILoginID:     strings.TrimSpace(env.GetEnv("ANET_API_LOGIN_ID", "")),
		TransactionKey: strings.TrimSpace(env.GetEnv("ANET_TRANSACTION_KEY", "")),
		SignatureKey:   strings.TrimSpace(env.GetEnv("ANET_SIGNATURE_KEY", "")),
		Sandbox:        false,
	}
}

// Validate reports whether the config can be used for gateway operations.
// A missing login id or transaction key is a hard precondition failure.
func (c Config) Validate() error {
	if c.APILoginID == "" || c.TransactionKey == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Endpoint returns the JSON API endpoint for the configured environment.
func (c Config) Endpoint() string {
	if c.Sandbox {
		return sandboxEndpoint
	}
	return productionEndpoint
}
