package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"pix-gateway/internal/domain"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	// Endpoint minimum, stricter than the provider's R$ 0,01.
	minCreateAmount domain.Amount = 100

	maxCreateBodyBytes = 64 << 10
)

type createChargeRequest struct {
	Amount     json.Number `json:"amount"`
	PayerName  string      `json:"payer_name"`
	CPF        string      `json:"cpf"`
	ExternalID string      `json:"external_id"`
}

type createOutcome struct {
	status      int
	body        []byte
	requestHash string
	replayed    bool
}

// storedCreate is the idempotency record of a successful create.
type storedCreate struct {
	RequestHash string          `json:"request_hash"`
	Response    json.RawMessage `json:"response"`
}

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type rejectedEnvelope struct {
	Success  bool           `json:"success"`
	Mensagem string         `json:"mensagem"`
	Detalhes map[string]any `json:"detalhes"`
}

type errorEnvelope struct {
	Success bool             `json:"success"`
	Error   string           `json:"error"`
	Details any              `json:"details,omitempty"`
	Kind    domain.ErrorKind `json:"kind,omitempty"`
}

type envData struct {
	ClientID  string `json:"client_id_env"`
	AccountID string `json:"account_id_env"`
	PixKey    string `json:"pix_key_env"`
}

type sandboxData struct {
	ClientID   *string `json:"client_id_sandbox"`
	AccountID  *string `json:"account_id_sandbox"`
	MatchesEnv bool    `json:"matches_env"`
}

type diagnosticReport struct {
	domain.DiagnosticReport
	SandboxData     sandboxData `json:"sandbox_data"`
	EnvData         envData     `json:"env_data"`
	ClientAccountID *string     `json:"client_account_id"`
	ClientID        *string     `json:"client_id"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxCreateBodyBytes)

	req, err := decodeCreateRequest(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: "request body too large", Details: err.Error()})
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorEnvelope{Error: "invalid request", Details: err.Error()})
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key == "" || s.idem == nil {
		out := s.createCharge(r.Context(), req)
		writeRaw(w, out.status, out.body)
		return
	}

	// Requests sharing a key run one at a time; the rest get the first
	// result. The charge call is detached so a disconnecting client does
	// not cancel it for the others, and its answer still gets stored.
	hash := requestHash(req)
	ran := false
	v, _, _ := s.creates.Do(key, func() (any, error) {
		ran = true
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.requestTimeout)
		defer cancel()
		return s.createIdempotent(ctx, key, hash, req), nil
	})
	out := v.(createOutcome)
	if out.requestHash != hash {
		writeJSON(w, http.StatusUnprocessableEntity, errorEnvelope{
			Error:   "Idempotency-Key was already used with a different request",
			Details: key,
		})
		return
	}
	if out.replayed || (!ran && out.status == http.StatusOK) {
		w.Header().Set(replayedHeader, "true")
	}
	writeRaw(w, out.status, out.body)
}

// createIdempotent replays the stored answer for key or creates the charge
// and stores a successful answer.
func (s *Server) createIdempotent(ctx context.Context, key, hash string, req domain.ChargeRequest) createOutcome {
	raw, ok, err := s.idem.Lookup(key)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("pix: idempotency lookup")
		return encodeOutcome(http.StatusInternalServerError, hash, errorEnvelope{Error: "idempotency store unavailable", Details: err.Error()})
	}
	if ok {
		var stored storedCreate
		if err := json.Unmarshal(raw, &stored); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("pix: idempotency record unreadable")
			return encodeOutcome(http.StatusInternalServerError, hash, errorEnvelope{Error: "stored response is unreadable", Details: err.Error()})
		}
		return createOutcome{status: http.StatusOK, body: stored.Response, requestHash: stored.RequestHash, replayed: true}
	}

	out := s.createCharge(ctx, req)
	out.requestHash = hash
	if out.status != http.StatusOK {
		return out
	}
	record, err := json.Marshal(storedCreate{RequestHash: hash, Response: out.body})
	if err == nil {
		_, err = s.idem.Save(key, record)
	}
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("pix: idempotency save")
	}
	return out
}

func (s *Server) createCharge(ctx context.Context, req domain.ChargeRequest) createOutcome {
	result, err := s.charges.CreateCharge(ctx, req)
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(domain.KindOf(err))).Msg("pix: create charge")
		return encodeOutcome(http.StatusInternalServerError, "", errorEnvelope{
			Error:   "Unexpected error while creating Pix charge",
			Details: err.Error(),
			Kind:    domain.KindOf(err),
		})
	}
	if !result.Succeeded() {
		return encodeOutcome(http.StatusBadRequest, "", rejectedEnvelope{
			Mensagem: "Failed to create Pix charge",
			Detalhes: failureDetails(result.Failure),
		})
	}
	return encodeOutcome(http.StatusOK, "", successEnvelope{Success: true, Data: result.Data})
}

func encodeOutcome(status int, hash string, v any) createOutcome {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorEnvelope{Error: "failed to encode response", Details: err.Error()})
	}
	return createOutcome{status: status, body: body, requestHash: hash}
}

// requestHash fingerprints the normalised request, so JSON and form bodies
// with the same values share a key.
func requestHash(req domain.ChargeRequest) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d\x00%s\x00%s\x00%s",
		int64(req.Amount), req.PayerName, req.PayerDocument, req.ExternalReference))
	return hex.EncodeToString(sum[:])
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	chargeID := chi.URLParam(r, "chargeId")
	result, err := s.charges.ChargeStatus(r.Context(), chargeID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{
			Error:   "Failed to read Pix charge",
			Details: err.Error(),
			Kind:    domain.KindOf(err),
		})
		return
	}
	if !result.Succeeded() {
		writeJSON(w, http.StatusBadRequest, rejectedEnvelope{
			Mensagem: "Failed to read Pix charge",
			Detalhes: failureDetails(result.Failure),
		})
		return
	}
	writeJSON(w, http.StatusOK, successEnvelope{Success: true, Data: result.Data})
}

func (s *Server) handleDiagnostic(w http.ResponseWriter, r *http.Request) {
	report := s.diag.Run(r.Context())
	account := s.diag.AccountFromClient(r.Context())
	if !account.OK() {
		s.log.Warn().Str("error", account.Error).Msg("pix: account lookup failed")
	}

	resp := diagnosticReport{
		DiagnosticReport: report,
		SandboxData: sandboxData{
			ClientID:   optional(account.ClientID),
			AccountID:  optional(account.AccountID),
			MatchesEnv: account.MatchesEnv,
		},
		EnvData:         s.envData(),
		ClientAccountID: optional(account.AccountID),
		ClientID:        optional(account.ClientID),
	}
	s.log.Info().
		Bool("token_valid", report.TokenValid).
		Bool("account_matches", report.AccountMatches).
		Bool("pix_key_valid", report.PixKeyValid).
		Msg("pix: diagnostic finished")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "report": resp})
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.diag.Snapshot(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("pix: token snapshot")
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{
			Error:   "Failed to fetch tokens",
			Details: err.Error(),
			Kind:    domain.KindOf(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"env_data":     s.envData(),
		"sandbox_data": snapshot,
	})
}

func (s *Server) envData() envData {
	return envData{
		ClientID:  s.creds.ClientID,
		AccountID: s.creds.AccountID,
		PixKey:    s.creds.PixKey,
	}
}

func decodeCreateRequest(r *http.Request) (domain.ChargeRequest, error) {
	var body createChargeRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err != nil {
			return domain.ChargeRequest{}, fmt.Errorf("invalid form body: %w", err)
		}
		body = createChargeRequest{
			Amount:     json.Number(strings.TrimSpace(r.PostFormValue("amount"))),
			PayerName:  r.PostFormValue("payer_name"),
			CPF:        r.PostFormValue("cpf"),
			ExternalID: r.PostFormValue("external_id"),
		}
	default:
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return domain.ChargeRequest{}, fmt.Errorf("invalid request body: %w", err)
		}
	}

	if body.Amount == "" {
		return domain.ChargeRequest{}, fmt.Errorf("amount is required")
	}
	amount, err := domain.ParseAmount(body.Amount.String())
	if err != nil {
		return domain.ChargeRequest{}, fmt.Errorf("amount must be numeric")
	}
	if amount < minCreateAmount {
		return domain.ChargeRequest{}, fmt.Errorf("amount must be at least %s", minCreateAmount)
	}
	return domain.ChargeRequest{
		Amount:            amount,
		PayerName:         strings.TrimSpace(body.PayerName),
		PayerDocument:     strings.TrimSpace(body.CPF),
		ExternalReference: strings.TrimSpace(body.ExternalID),
	}, nil
}

func failureDetails(f *domain.ChargeFailure) map[string]any {
	var hint any
	if f.Hint != "" {
		hint = f.Hint
	}
	return map[string]any{
		"error":    remoteError(f),
		"status":   f.Status,
		"reason":   f.Reason,
		"hint":     hint,
		"headers":  f.RequestHeaders,
		"payload":  f.Payload,
		"body_raw": f.RawBody,
		"json_raw": f.JSON,
	}
}

// remoteError picks the provider's own error message when it sent one.
func remoteError(f *domain.ChargeFailure) string {
	if obj, ok := f.JSON.(map[string]any); ok {
		for _, key := range []string{"error", "message", "detail", "title"} {
			if msg, ok := obj[key].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return f.Reason
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
