package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Credentials is the single static credential set of the provider account.
type Credentials struct {
	ClientID     string
	ClientSecret string
	PixKey       string
	AccountID    string
	APIBaseURL   string
}

// Validate reports ErrMissingCredentials when login cannot be attempted.
func (c Credentials) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if c.APIBaseURL == "" {
		missing = append(missing, "api_base_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingCredentials, missing)
	}
	return nil
}

// Token is an OAuth2 client-credentials bearer token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ValidAt reports whether the token can still be used at now.
func (t Token) ValidAt(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// ChargeRequest describes a charge to create. Empty optional fields fall back
// to provider defaults.
type ChargeRequest struct {
	Amount            Amount
	PayerName         string
	PayerDocument     string
	ExternalReference string
}

// Validate checks the request before any provider call.
func (r ChargeRequest) Validate() error {
	if r.Amount < MinChargeAmount {
		return fmt.Errorf("amount must be at least %s", MinChargeAmount)
	}
	return nil
}

// Classification is the coarse reason/hint pair for a failed provider call.
type Classification struct {
	Reason string `json:"reason"`
	Hint   string `json:"hint,omitempty"`
}

// ChargeFailure keeps everything an operator needs to debug a rejected call.
type ChargeFailure struct {
	Classification
	Status         int               `json:"status"`
	RawBody        string            `json:"body_raw"`
	JSON           any               `json:"json_raw,omitempty"`
	Payload        json.RawMessage   `json:"payload,omitempty"`
	RequestHeaders map[string]string `json:"headers,omitempty"`
}

// Err converts the failure into a *ProviderError.
func (f *ChargeFailure) Err(op string) error {
	return &ProviderError{
		Op:             op,
		Status:         f.Status,
		Body:           f.RawBody,
		Classification: f.Classification,
	}
}

// ChargeResult is the outcome of a provider charge call: either Data or
// Failure is set, never both. Branch on Succeeded.
type ChargeResult struct {
	Status  int            `json:"status"`
	Data    any            `json:"data,omitempty"`
	Failure *ChargeFailure `json:"failure,omitempty"`
}

// Succeeded reports whether the provider accepted the call.
func (r ChargeResult) Succeeded() bool {
	return r.Failure == nil
}

// DiagnosticReport summarises credential health checks. It is best effort:
// a failing step never discards the booleans already computed.
type DiagnosticReport struct {
	TokenValid     bool           `json:"token_valid"`
	AccountMatches bool           `json:"account_matches"`
	PixKeyValid    bool           `json:"pix_key_valid"`
	Details        map[string]any `json:"details"`
}

// AccountCheck compares the account the provider reports for our client
// with the configured Account-Id.
type AccountCheck struct {
	ClientID   string `json:"client_id,omitempty"`
	AccountID  string `json:"account_id,omitempty"`
	MatchesEnv bool   `json:"matches_env"`
	Error      string `json:"error,omitempty"`
}

// OK reports whether the provider answered the lookup.
func (c AccountCheck) OK() bool {
	return c.Error == ""
}
