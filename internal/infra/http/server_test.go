package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"pix-gateway/internal/domain"
	"pix-gateway/internal/infra/idempotency"
)

var testCreds = domain.Credentials{
	ClientID:     "client",
	ClientSecret: "secret",
	PixKey:       "pix-key",
	AccountID:    "acc-1",
	APIBaseURL:   "https://provider.test",
}

type fakeCharges struct {
	mu       sync.Mutex
	requests []domain.ChargeRequest
	result   domain.ChargeResult
	err      error
	txid     string

	// entered and release hold CreateCharge open when set.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeCharges) CreateCharge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return domain.ChargeResult{}, err
	}
	if f.release != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeCharges) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeCharges) ChargeStatus(_ context.Context, txid string) (domain.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txid = txid
	return f.result, f.err
}

type fakeDiag struct {
	report   domain.DiagnosticReport
	account  domain.AccountCheck
	snapshot map[string]any
	err      error
}

func (f *fakeDiag) Run(context.Context) domain.DiagnosticReport { return f.report }

func (f *fakeDiag) AccountFromClient(context.Context) domain.AccountCheck { return f.account }

func (f *fakeDiag) Snapshot(context.Context) (map[string]any, error) { return f.snapshot, f.err }

func serve(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateSuccess(t *testing.T) {
	charges := &fakeCharges{result: domain.ChargeResult{Status: 201, Data: map[string]any{"txid": "tx-1"}}}
	s := NewServer(testCreds, charges, &fakeDiag{})

	rec, body := serve(t, s, jsonRequest(http.MethodPost, "/pix/create", `{"amount":"150.5","payer_name":" Ana ","cpf":"123","external_id":"A-1"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "tx-1", body["data"].(map[string]any)["txid"])

	require.Len(t, charges.requests, 1)
	require.Equal(t, domain.ChargeRequest{
		Amount:            15050,
		PayerName:         "Ana",
		PayerDocument:     "123",
		ExternalReference: "A-1",
	}, charges.requests[0])
}

func TestCreateAcceptsNumericAmountAndForm(t *testing.T) {
	charges := &fakeCharges{result: domain.ChargeResult{Status: 201, Data: map[string]any{}}}
	s := NewServer(testCreds, charges, &fakeDiag{})

	rec, _ := serve(t, s, jsonRequest(http.MethodPost, "/pix/create", `{"amount":10}`))
	require.Equal(t, http.StatusOK, rec.Code)

	form := url.Values{"amount": {"2.50"}, "payer_name": {"Bia"}}
	req := httptest.NewRequest(http.MethodPost, "/pix/create", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec, _ = serve(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, domain.Amount(1000), charges.requests[0].Amount)
	require.Equal(t, domain.Amount(250), charges.requests[1].Amount)
	require.Equal(t, "Bia", charges.requests[1].PayerName)
}

func TestCreateValidation(t *testing.T) {
	charges := &fakeCharges{}
	s := NewServer(testCreds, charges, &fakeDiag{})

	for _, payload := range []string{`{}`, `{"amount":"abc"}`, `{"amount":0.99}`, `not json`} {
		rec, body := serve(t, s, jsonRequest(http.MethodPost, "/pix/create", payload))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, payload)
		require.Equal(t, false, body["success"])
		require.NotEmpty(t, body["details"])
	}
	require.Empty(t, charges.requests)
}

func TestCreateProviderRejection(t *testing.T) {
	charges := &fakeCharges{result: domain.ChargeResult{
		Status: 401,
		Failure: &domain.ChargeFailure{
			Classification: domain.Classification{Reason: "Permission denied for operation", Hint: "hint"},
			Status:         401,
			RawBody:        `{"message":"Operation not permitted"}`,
			JSON:           map[string]any{"message": "Operation not permitted"},
			Payload:        json.RawMessage(`{"chave":"pix-key"}`),
			RequestHeaders: map[string]string{"Authorization": "***"},
		},
	}}
	s := NewServer(testCreds, charges, &fakeDiag{})

	rec, body := serve(t, s, jsonRequest(http.MethodPost, "/pix/create", `{"amount":"5"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, body["success"])
	require.Equal(t, "Failed to create Pix charge", body["mensagem"])

	details := body["detalhes"].(map[string]any)
	require.Equal(t, "Operation not permitted", details["error"])
	require.EqualValues(t, 401, details["status"])
	require.Equal(t, "Permission denied for operation", details["reason"])
	require.Equal(t, "hint", details["hint"])
	require.Equal(t, "***", details["headers"].(map[string]any)["Authorization"])
	require.Equal(t, "pix-key", details["payload"].(map[string]any)["chave"])
	require.Equal(t, `{"message":"Operation not permitted"}`, details["body_raw"])
}

func TestCreateRejectionWithoutHint(t *testing.T) {
	charges := &fakeCharges{result: domain.ChargeResult{
		Status:  418,
		Failure: &domain.ChargeFailure{Classification: domain.Classification{Reason: "Unknown API error"}, Status: 418, RawBody: "teapot"},
	}}
	s := NewServer(testCreds, charges, &fakeDiag{})

	_, body := serve(t, s, jsonRequest(http.MethodPost, "/pix/create", `{"amount":"5"}`))
	details := body["detalhes"].(map[string]any)
	require.Contains(t, details, "hint")
	require.Nil(t, details["hint"])
	require.Equal(t, "Unknown API error", details["error"])
}

func TestCreateUnexpectedError(t *testing.T) {
	charges := &fakeCharges{err: &domain.AuthError{Status: 401, Body: "denied"}}
	s := NewServer(testCreds, charges, &fakeDiag{})

	rec, body := serve(t, s, jsonRequest(http.MethodPost, "/pix/create", `{"amount":"5"}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, false, body["success"])
	require.Equal(t, "auth", body["kind"])
	require.Contains(t, body["details"], "denied")
}

func TestCreateIdempotencyReplay(t *testing.T) {
	store, err := idempotency.New(filepath.Join(t.TempDir(), "idem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	charges := &fakeCharges{result: domain.ChargeResult{Status: 201, Data: map[string]any{"txid": "tx-1"}}}
	s := NewServer(testCreds, charges, &fakeDiag{}, WithIdempotency(store))

	send := func() *httptest.ResponseRecorder {
		req := jsonRequest(http.MethodPost, "/pix/create", `{"amount":"5"}`)
		req.Header.Set("Idempotency-Key", "order-1")
		rec, _ := serve(t, s, req)
		return rec
	}
	first := send()
	second := send()

	require.Equal(t, http.StatusOK, first.Code)
	require.Empty(t, first.Header().Get("Idempotent-Replayed"))
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Len(t, charges.requests, 1)
}

func newIdempotentServer(t *testing.T, charges *fakeCharges) *Server {
	t.Helper()
	store, err := idempotency.New(filepath.Join(t.TempDir(), "idem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewServer(testCreds, charges, &fakeDiag{}, WithIdempotency(store))
}

func TestCreateConcurrentSameKeyCreatesOnce(t *testing.T) {
	charges := &fakeCharges{
		result:  domain.ChargeResult{Status: 201, Data: map[string]any{"txid": "tx-1"}},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := newIdempotentServer(t, charges)

	const n = 5
	recs := make([]*httptest.ResponseRecorder, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := jsonRequest(http.MethodPost, "/pix/create", `{"amount":"5"}`)
			req.Header.Set("Idempotency-Key", "order-1")
			recs[i] = httptest.NewRecorder()
			s.Router.ServeHTTP(recs[i], req)
		}()
	}

	<-charges.entered
	// Let the other requests reach the in-flight create before it returns.
	time.Sleep(50 * time.Millisecond)
	close(charges.release)
	wg.Wait()

	require.Equal(t, 1, charges.calls())
	replayed := 0
	for _, rec := range recs {
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, recs[0].Body.String(), rec.Body.String())
		if rec.Header().Get("Idempotent-Replayed") == "true" {
			replayed++
		}
	}
	require.Equal(t, n-1, replayed)
}

func TestCreateCancelledClientStillStoresCharge(t *testing.T) {
	charges := &fakeCharges{result: domain.ChargeResult{Status: 201, Data: map[string]any{"txid": "tx-1"}}}
	s := newIdempotentServer(t, charges)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	first := jsonRequest(http.MethodPost, "/pix/create", `{"amount":"5"}`).WithContext(ctx)
	first.Header.Set("Idempotency-Key", "order-1")
	s.Router.ServeHTTP(httptest.NewRecorder(), first)

	retry := jsonRequest(http.MethodPost, "/pix/create", `{"amount":"5"}`)
	retry.Header.Set("Idempotency-Key", "order-1")
	rec, body := serve(t, s, retry)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
	require.Equal(t, "tx-1", body["data"].(map[string]any)["txid"])
	require.Equal(t, 1, charges.calls())
}

func TestCreateIdempotencyKeyBoundToRequest(t *testing.T) {
	charges := &fakeCharges{result: domain.ChargeResult{Status: 201, Data: map[string]any{"txid": "tx-1"}}}
	s := newIdempotentServer(t, charges)

	send := func(body string) (*httptest.ResponseRecorder, map[string]any) {
		req := jsonRequest(http.MethodPost, "/pix/create", body)
		req.Header.Set("Idempotency-Key", "order-1")
		return serve(t, s, req)
	}
	first, _ := send(`{"amount":"5","external_id":"a"}`)
	require.Equal(t, http.StatusOK, first.Code)

	rec, body := send(`{"amount":"7","external_id":"a"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, body["error"], "Idempotency-Key")
	require.Empty(t, rec.Header().Get("Idempotent-Replayed"))

	// Same values as a form body still replay.
	form := url.Values{"amount": {"5"}, "external_id": {"a"}}
	req := httptest.NewRequest(http.MethodPost, "/pix/create", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", "order-1")
	rec, _ = serve(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
	require.Equal(t, 1, charges.calls())
}

func TestCreateBodyTooLarge(t *testing.T) {
	charges := &fakeCharges{}
	s := NewServer(testCreds, charges, &fakeDiag{})

	huge := `{"amount":"5","payer_name":"` + strings.Repeat("a", maxCreateBodyBytes) + `"}`
	rec, body := serve(t, s, jsonRequest(http.MethodPost, "/pix/create", huge))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, "request body too large", body["error"])
	require.Zero(t, charges.calls())
}

func TestStatus(t *testing.T) {
	charges := &fakeCharges{result: domain.ChargeResult{Status: 200, Data: map[string]any{"status": "ATIVA"}}}
	s := NewServer(testCreds, charges, &fakeDiag{})

	rec, body := serve(t, s, httptest.NewRequest(http.MethodGet, "/pix/status/tx-42", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ATIVA", body["data"].(map[string]any)["status"])
	require.Equal(t, "tx-42", charges.txid)
}

func TestDiagnostic(t *testing.T) {
	diag := &fakeDiag{
		report:  domain.DiagnosticReport{TokenValid: true, AccountMatches: true, Details: map[string]any{"pix_test": "ok"}},
		account: domain.AccountCheck{ClientID: "client", AccountID: "acc-1", MatchesEnv: true},
	}
	s := NewServer(testCreds, &fakeCharges{}, diag)

	rec, body := serve(t, s, httptest.NewRequest(http.MethodGet, "/pix/diagnostic", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	report := body["report"].(map[string]any)
	require.Equal(t, true, report["token_valid"])
	require.Equal(t, true, report["account_matches"])
	require.Equal(t, false, report["pix_key_valid"])
	require.Equal(t, "acc-1", report["client_account_id"])
	require.Equal(t, "client", report["client_id"])
	require.Equal(t, map[string]any{
		"client_id_sandbox":  "client",
		"account_id_sandbox": "acc-1",
		"matches_env":        true,
	}, report["sandbox_data"])
	require.Equal(t, map[string]any{
		"client_id_env":  "client",
		"account_id_env": "acc-1",
		"pix_key_env":    "pix-key",
	}, report["env_data"])
}

func TestDiagnosticAccountLookupFailed(t *testing.T) {
	diag := &fakeDiag{
		report:  domain.DiagnosticReport{Details: map[string]any{"exception": "boom"}},
		account: domain.AccountCheck{Error: "boom"},
	}
	s := NewServer(testCreds, &fakeCharges{}, diag)

	_, body := serve(t, s, httptest.NewRequest(http.MethodGet, "/pix/diagnostic", nil))
	report := body["report"].(map[string]any)
	require.Nil(t, report["client_account_id"])
	require.Nil(t, report["client_id"])
	require.Equal(t, "boom", report["details"].(map[string]any)["exception"])
}

func TestTokens(t *testing.T) {
	s := NewServer(testCreds, &fakeCharges{}, &fakeDiag{snapshot: map[string]any{"client_id": "client"}})
	rec, body := serve(t, s, httptest.NewRequest(http.MethodGet, "/pix/tokens", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "client", body["sandbox_data"].(map[string]any)["client_id"])
	require.Equal(t, "pix-key", body["env_data"].(map[string]any)["pix_key_env"])

	s = NewServer(testCreds, &fakeCharges{}, &fakeDiag{err: domain.ErrMissingCredentials})
	rec, body = serve(t, s, httptest.NewRequest(http.MethodGet, "/pix/tokens", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "config", body["kind"])
}

func TestAdminToken(t *testing.T) {
	s := NewServer(testCreds, &fakeCharges{}, &fakeDiag{snapshot: map[string]any{}}, WithAdminToken("s3cret"))

	rec, _ := serve(t, s, httptest.NewRequest(http.MethodGet, "/pix/tokens", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/pix/diagnostic", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec, _ = serve(t, s, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/pix/tokens", nil)
	req.Header.Set("X-Admin-Token", "s3cret")
	rec, _ = serve(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, s, httptest.NewRequest(http.MethodGet, "/pix/form", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestForm(t *testing.T) {
	s := NewServer(testCreds, &fakeCharges{}, &fakeDiag{})
	rec, _ := serve(t, s, httptest.NewRequest(http.MethodGet, "/pix/form", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), "/pix/create")
	require.Contains(t, rec.Body.String(), "pix-key")
}

func TestHealthz(t *testing.T) {
	s := NewServer(testCreds, &fakeCharges{}, &fakeDiag{})
	rec, body := serve(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
}

func TestMetricsOnlyOnMetricsServer(t *testing.T) {
	s := NewServer(testCreds, &fakeCharges{}, &fakeDiag{})
	rec, _ := serve(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestTimeoutOption(t *testing.T) {
	s := NewServer(testCreds, &fakeCharges{}, &fakeDiag{})
	require.Equal(t, DefaultRequestTimeout, s.requestTimeout)

	s = NewServer(testCreds, &fakeCharges{}, &fakeDiag{}, WithRequestTimeout(5*time.Second))
	require.Equal(t, 5*time.Second, s.requestTimeout)
}

func TestOpenAPIListsRoutes(t *testing.T) {
	s := NewServer(testCreds, &fakeCharges{}, &fakeDiag{})
	rec, _ := serve(t, s, httptest.NewRequest(http.MethodGet, "/pix/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Paths map[string]any `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &doc))
	for _, path := range []string{"/pix/form", "/pix/create", "/pix/status/{chargeId}", "/pix/diagnostic", "/pix/tokens"} {
		require.Contains(t, doc.Paths, path)
	}
}
