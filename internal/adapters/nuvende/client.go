package nuvende

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pix-gateway/internal/domain"
	"pix-gateway/internal/infra/metrics"
)

const (
	defaultBaseURL = "https://api-h.nuvende.com.br"
	loginScope     = "cob.read cob.write"

	pathLogin  = "/api/v2/auth/login"
	pathUser   = "/api/v2/auth/user"
	pathCharge = "/api/v2/cobranca/cob"

	component = "nuvende"
)

// routes keeps metric labels free of path parameters.
var routes = map[string]string{
	"login":         pathLogin,
	"fetch_user":    pathUser,
	"create_charge": pathCharge,
	"get_charge":    pathCharge + "/{txid}",
}

// Config configures the provider transport.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client performs raw request/response calls against the provider. It never
// retries; any non-2xx Response is the caller's to interpret.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
}

// Response is a provider answer together with the headers we sent.
type Response struct {
	Status         int
	Body           []byte
	Header         http.Header
	RequestHeaders http.Header
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// JSON decodes the body, keeping numbers as json.Number. It reports false
// when the body is not valid JSON.
func (r Response) JSON() (any, bool) {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, false
	}
	return out, true
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	client := &Client{cfg: cfg, log: log}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	client.cfg.BaseURL = strings.TrimRight(client.cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client.httpClient = &http.Client{Timeout: timeout}
	return client
}

func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

// BaseURL returns the provider base URL in use.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Login requests a client-credentials token with HTTP Basic authentication.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (Response, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", loginScope)

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("Accept", "application/json")

	return c.do(ctx, "login", http.MethodPost, pathLogin, header, strings.NewReader(form.Encode()), func(req *http.Request) {
		req.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	})
}

// CreateCharge posts a cob payload on behalf of accountID. payload is
// marshalled as is, so a json.RawMessage is sent verbatim.
func (c *Client) CreateCharge(ctx context.Context, token, accountID string, payload any) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal charge: %w", err)
	}
	return c.do(ctx, "create_charge", http.MethodPost, pathCharge, accountHeaders(token, accountID), bytes.NewReader(body), nil)
}

// GetCharge reads an existing charge by txid.
func (c *Client) GetCharge(ctx context.Context, token, accountID, txid string) (Response, error) {
	if txid == "" {
		return Response{}, fmt.Errorf("txid is required")
	}
	endpoint := pathCharge + "/" + url.PathEscape(txid)
	return c.do(ctx, "get_charge", http.MethodGet, endpoint, accountHeaders(token, accountID), nil, nil)
}

// FetchUser returns the client/account the token belongs to.
func (c *Client) FetchUser(ctx context.Context, token string) (Response, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Accept", "application/json")
	return c.do(ctx, "fetch_user", http.MethodPost, pathUser, header, nil, nil)
}

func accountHeaders(token, accountID string) http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Account-Id", accountID)
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	return header
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, header http.Header, body io.Reader, prepare func(*http.Request)) (Response, error) {
	if c.httpClient == nil {
		return Response{}, fmt.Errorf("http client is not configured")
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, body)
	if err != nil {
		return Response{}, fmt.Errorf("build %s request: %w", op, err)
	}
	for key, values := range header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if prepare != nil {
		prepare(httpReq)
	}

	target := routes[op]
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest(component, op, target, start, err)
		return Response{}, fmt.Errorf("send %s request: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	metrics.ObserveNetworkRequest(component, op, target, start, err)
	if err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", op, err)
	}

	out := Response{
		Status:         resp.StatusCode,
		Body:           data,
		Header:         resp.Header,
		RequestHeaders: httpReq.Header.Clone(),
	}
	c.log.Debug().
		Str("op", op).
		Str("endpoint", endpoint).
		Int("status", out.Status).
		Dur("took", time.Since(start)).
		Str("body", RedactBody(data)).
		Msg("nuvende: response")
	return out, nil
}
