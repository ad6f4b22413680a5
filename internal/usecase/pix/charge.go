package pix

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pix-gateway/internal/adapters/nuvende"
	"pix-gateway/internal/domain"
	"pix-gateway/internal/infra/metrics"
)

const (
	chargeExpiration     = 3600 // seconds
	defaultPayerDocument = "00000000000"
	defaultPayerName     = "Test Client"
	payerRequestPrefix   = "Order "
)

// Provider is the subset of the provider client the services call.
type Provider interface {
	CreateCharge(ctx context.Context, token, accountID string, payload any) (nuvende.Response, error)
	GetCharge(ctx context.Context, token, accountID, txid string) (nuvende.Response, error)
	FetchUser(ctx context.Context, token string) (nuvende.Response, error)
}

// TokenSource hands out a valid bearer token.
type TokenSource interface {
	Get(ctx context.Context) (domain.Token, error)
}

// ChargeService creates charges. Provider rejections come back as
// ChargeResult.Failure; config, auth and transport problems as errors.
type ChargeService struct {
	creds    domain.Credentials
	tokens   TokenSource
	provider Provider
	events   domain.BusinessMetricRepo
	log      zerolog.Logger
	newRef   func() string
}

type ChargeOption func(*ChargeService)

func WithChargeEvents(events domain.BusinessMetricRepo) ChargeOption {
	return func(s *ChargeService) {
		if events != nil {
			s.events = events
		}
	}
}

// WithReferenceGenerator overrides the generator used when a request has no
// external reference.
func WithReferenceGenerator(gen func() string) ChargeOption {
	return func(s *ChargeService) {
		if gen != nil {
			s.newRef = gen
		}
	}
}

func NewChargeService(creds domain.Credentials, tokens TokenSource, provider Provider, log zerolog.Logger, opts ...ChargeOption) *ChargeService {
	s := &ChargeService{
		creds:    creds,
		tokens:   tokens,
		provider: provider,
		events:   domain.NopBusinessMetrics{},
		log:      log,
		newRef:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildPayload turns a request into the provider cob body.
func (s *ChargeService) BuildPayload(req domain.ChargeRequest) nuvende.Cob {
	document := req.PayerDocument
	if document == "" {
		document = defaultPayerDocument
	}
	name := req.PayerName
	if name == "" {
		name = defaultPayerName
	}
	reference := req.ExternalReference
	if reference == "" {
		reference = s.newRef()
	}
	return nuvende.Cob{
		Calendar:     nuvende.CobCalendar{Expiration: chargeExpiration},
		Debtor:       nuvende.CobDebtor{CPF: document, Name: name},
		Value:        nuvende.CobValue{Original: req.Amount.String()},
		Key:          s.creds.PixKey,
		PayerRequest: payerRequestPrefix + reference,
	}
}

// CreateCharge builds the payload from req and submits it.
func (s *ChargeService) CreateCharge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	if err := req.Validate(); err != nil {
		return domain.ChargeResult{}, err
	}
	tok, err := s.tokens.Get(ctx)
	if err != nil {
		return domain.ChargeResult{}, err
	}
	payload, err := json.Marshal(s.BuildPayload(req))
	if err != nil {
		return domain.ChargeResult{}, fmt.Errorf("marshal payload: %w", err)
	}
	return s.submit(ctx, "create_charge", tok, payload)
}

// CreateChargeWithAnalysis submits a caller-built provider payload with the
// same token, header and failure handling as CreateCharge.
func (s *ChargeService) CreateChargeWithAnalysis(ctx context.Context, payload json.RawMessage) (domain.ChargeResult, error) {
	if !json.Valid(payload) {
		return domain.ChargeResult{}, fmt.Errorf("payload is not valid json")
	}
	tok, err := s.tokens.Get(ctx)
	if err != nil {
		return domain.ChargeResult{}, err
	}
	return s.submit(ctx, "create_charge_raw", tok, payload)
}

// ChargeStatus reads a previously created charge.
func (s *ChargeService) ChargeStatus(ctx context.Context, txid string) (domain.ChargeResult, error) {
	if txid == "" {
		return domain.ChargeResult{}, fmt.Errorf("charge id is required")
	}
	tok, err := s.tokens.Get(ctx)
	if err != nil {
		return domain.ChargeResult{}, err
	}
	resp, err := s.provider.GetCharge(ctx, tok.AccessToken, s.creds.AccountID, txid)
	if err != nil {
		metrics.ObserveCharge("get_charge", "error")
		return domain.ChargeResult{}, fmt.Errorf("get charge: %w", err)
	}
	result := resultFromResponse(resp, nil)
	metrics.ObserveCharge("get_charge", outcome(result))
	return result, nil
}

func (s *ChargeService) submit(ctx context.Context, op string, tok domain.Token, payload json.RawMessage) (domain.ChargeResult, error) {
	s.log.Info().RawJSON("payload", payload).Msg("pix: sending charge")

	resp, err := s.provider.CreateCharge(ctx, tok.AccessToken, s.creds.AccountID, payload)
	if err != nil {
		metrics.ObserveCharge(op, "error")
		return domain.ChargeResult{}, fmt.Errorf("create charge: %w", err)
	}
	result := resultFromResponse(resp, payload)
	metrics.ObserveCharge(op, outcome(result))

	event := domain.BusinessMetric{
		Event:      domain.BusinessMetricEventChargeCreated,
		Metadata:   map[string]any{"status": resp.Status, "operation": op},
		OccurredAt: time.Now().UTC(),
	}
	if result.Succeeded() {
		s.log.Info().Int("status", resp.Status).Msg("pix: charge created")
	} else {
		event.Event = domain.BusinessMetricEventChargeRejected
		event.Metadata["reason"] = result.Failure.Reason
		s.log.Warn().
			Int("status", resp.Status).
			Str("reason", result.Failure.Reason).
			Str("body", result.Failure.RawBody).
			Msg("pix: charge rejected")
	}
	if err := s.events.RecordBusinessMetric(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("event", event.Event).Msg("pix: record business metric")
	}
	return result, nil
}

func resultFromResponse(resp nuvende.Response, payload json.RawMessage) domain.ChargeResult {
	decoded, isJSON := resp.JSON()
	if resp.OK() {
		data := decoded
		if !isJSON {
			data = string(resp.Body)
		}
		return domain.ChargeResult{Status: resp.Status, Data: data}
	}
	failure := &domain.ChargeFailure{
		Classification: Classify(resp.Status, string(resp.Body)),
		Status:         resp.Status,
		RawBody:        string(resp.Body),
		Payload:        payload,
		RequestHeaders: nuvende.RedactHeaders(resp.RequestHeaders),
	}
	if isJSON {
		failure.JSON = decoded
	}
	return domain.ChargeResult{Status: resp.Status, Failure: failure}
}

func outcome(result domain.ChargeResult) string {
	if result.Succeeded() {
		return "success"
	}
	return "rejected"
}
