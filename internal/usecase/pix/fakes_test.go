package pix

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"pix-gateway/internal/adapters/nuvende"
	"pix-gateway/internal/domain"
)

var testCreds = domain.Credentials{
	ClientID:     "client",
	ClientSecret: "secret",
	PixKey:       "pix-key",
	AccountID:    "acc-1",
	APIBaseURL:   "https://provider.test",
}

type staticTokens struct {
	token domain.Token
	err   error
}

func (s staticTokens) Get(context.Context) (domain.Token, error) {
	return s.token, s.err
}

type reply struct {
	status int
	body   string
	err    error
}

func (r reply) response(token, accountID string) (nuvende.Response, error) {
	if r.err != nil {
		return nuvende.Response{}, r.err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	if accountID != "" {
		header.Set("Account-Id", accountID)
	}
	return nuvende.Response{Status: r.status, Body: []byte(r.body), RequestHeaders: header}, nil
}

type fakeProvider struct {
	mu       sync.Mutex
	create   reply
	get      reply
	user     reply
	payloads []json.RawMessage
	txids    []string
}

func (f *fakeProvider) CreateCharge(_ context.Context, token, accountID string, payload any) (nuvende.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nuvende.Response{}, err
	}
	f.mu.Lock()
	f.payloads = append(f.payloads, raw)
	f.mu.Unlock()
	return f.create.response(token, accountID)
}

func (f *fakeProvider) GetCharge(_ context.Context, token, accountID, txid string) (nuvende.Response, error) {
	f.mu.Lock()
	f.txids = append(f.txids, txid)
	f.mu.Unlock()
	return f.get.response(token, accountID)
}

func (f *fakeProvider) FetchUser(_ context.Context, token string) (nuvende.Response, error) {
	return f.user.response(token, "")
}

type recordedEvents struct {
	mu     sync.Mutex
	events []domain.BusinessMetric
}

func (r *recordedEvents) RecordBusinessMetric(_ context.Context, m domain.BusinessMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, m)
	return nil
}

func validToken() domain.Token {
	return domain.Token{AccessToken: "tok"}
}
