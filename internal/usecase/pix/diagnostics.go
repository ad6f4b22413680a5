package pix

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"pix-gateway/internal/adapters/nuvende"
	"pix-gateway/internal/domain"
)

// Test charge used to check that the Pix key belongs to the account.
const (
	testChargeExpiration   = 60
	testChargeAmount       = domain.MinChargeAmount
	testChargePayerName    = "Pix Test"
	testChargePayerRequest = "Pix key validation test"
)

// Diagnostics runs read-mostly credential checks against the provider.
type Diagnostics struct {
	creds    domain.Credentials
	tokens   TokenSource
	provider Provider
	events   domain.BusinessMetricRepo
	log      zerolog.Logger
}

func NewDiagnostics(creds domain.Credentials, tokens TokenSource, provider Provider, log zerolog.Logger, events domain.BusinessMetricRepo) *Diagnostics {
	if events == nil {
		events = domain.NopBusinessMetrics{}
	}
	return &Diagnostics{creds: creds, tokens: tokens, provider: provider, events: events, log: log}
}

// Run checks token, account alignment and Pix key in that order. An
// unexpected error stops the remaining steps and lands in details.exception.
func (d *Diagnostics) Run(ctx context.Context) domain.DiagnosticReport {
	report := domain.DiagnosticReport{Details: map[string]any{}}
	defer d.record(ctx, &report)

	tok, err := d.tokens.Get(ctx)
	if err != nil {
		report.Details["exception"] = err.Error()
		return report
	}
	report.TokenValid = true

	userResp, err := d.provider.FetchUser(ctx, tok.AccessToken)
	if err != nil {
		report.Details["exception"] = err.Error()
		return report
	}
	if userResp.OK() {
		user, _ := userResp.JSON()
		report.Details["user"] = nuvende.RedactValue(user)
		if accountID, ok := field(user, "account_id"); ok && accountID == d.creds.AccountID {
			report.AccountMatches = true
		}
	} else {
		report.Details["user_error"] = string(userResp.Body)
	}

	testCharge := nuvende.Cob{
		Calendar:     nuvende.CobCalendar{Expiration: testChargeExpiration},
		Debtor:       nuvende.CobDebtor{CPF: defaultPayerDocument, Name: testChargePayerName},
		Value:        nuvende.CobValue{Original: testChargeAmount.String()},
		Key:          d.creds.PixKey,
		PayerRequest: testChargePayerRequest,
	}
	pixResp, err := d.provider.CreateCharge(ctx, tok.AccessToken, d.creds.AccountID, testCharge)
	if err != nil {
		report.Details["exception"] = err.Error()
		return report
	}
	if pixResp.OK() {
		report.PixKeyValid = true
		data, _ := pixResp.JSON()
		report.Details["pix_test"] = data
	} else {
		report.Details["pix_test_error"] = string(pixResp.Body)
		report.Details["pix_test_reason"] = Classify(pixResp.Status, string(pixResp.Body)).Reason
	}
	return report
}

// AccountFromClient asks the provider which client/account the token belongs
// to and compares it with the configured Account-Id.
func (d *Diagnostics) AccountFromClient(ctx context.Context) domain.AccountCheck {
	tok, err := d.tokens.Get(ctx)
	if err != nil {
		return domain.AccountCheck{Error: err.Error()}
	}
	resp, err := d.provider.FetchUser(ctx, tok.AccessToken)
	if err != nil {
		return domain.AccountCheck{Error: err.Error()}
	}
	if !resp.OK() {
		return domain.AccountCheck{Error: string(resp.Body)}
	}
	user, ok := resp.JSON()
	if !ok {
		return domain.AccountCheck{Error: "user response is not json"}
	}
	check := domain.AccountCheck{}
	check.ClientID, _ = field(user, "client_id")
	accountID, present := field(user, "account_id")
	check.AccountID = accountID
	check.MatchesEnv = present && accountID == d.creds.AccountID
	return check
}

// Snapshot returns the raw user payload of the current token, or an empty
// object when the provider refuses the lookup.
func (d *Diagnostics) Snapshot(ctx context.Context) (map[string]any, error) {
	tok, err := d.tokens.Get(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := d.provider.FetchUser(ctx, tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	if !resp.OK() {
		d.log.Warn().Int("status", resp.Status).Str("body", string(resp.Body)).Msg("pix: user lookup refused")
		return map[string]any{}, nil
	}
	decoded, _ := resp.JSON()
	user, ok := nuvende.RedactValue(decoded).(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return user, nil
}

func (d *Diagnostics) record(ctx context.Context, report *domain.DiagnosticReport) {
	_, failed := report.Details["exception"]
	err := d.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event: domain.BusinessMetricEventDiagnosticsRun,
		Metadata: map[string]any{
			"token_valid":     report.TokenValid,
			"account_matches": report.AccountMatches,
			"pix_key_valid":   report.PixKeyValid,
			"exception":       failed,
		},
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		d.log.Warn().Err(err).Msg("pix: record diagnostics metric")
	}
}

// field reads a scalar top-level field of a decoded JSON object as a string.
// Numbers and bools are stringified, so account_id 7 compares equal to "7".
func field(v any, key string) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	raw, ok := obj[key]
	if !ok || raw == nil {
		return "", false
	}
	switch typed := raw.(type) {
	case string:
		return typed, true
	case json.Number:
		return typed.String(), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(typed), true
	default:
		return fmt.Sprint(typed), true
	}
}
