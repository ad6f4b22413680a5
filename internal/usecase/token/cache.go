package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pix-gateway/internal/adapters/nuvende"
	"pix-gateway/internal/domain"
	"pix-gateway/internal/infra/metrics"
)

const defaultLoginTimeout = 30 * time.Second

// Authenticator performs the provider login call.
type Authenticator interface {
	Login(ctx context.Context, creds domain.Credentials) (nuvende.Response, error)
}

type loginCall struct {
	done  chan struct{}
	token domain.Token
	err   error
}

// Cache owns the process-wide provider token. At most one login is in flight
// per Cache; concurrent callers wait for its result.
type Cache struct {
	creds domain.Credentials
	auth  Authenticator
	store domain.TokenStore
	log   zerolog.Logger
	now   func() time.Time

	loginTimeout time.Duration

	mu       sync.Mutex
	inflight *loginCall
}

type Option func(*Cache)

// WithStore replaces the default in-memory store.
func WithStore(store domain.TokenStore) Option {
	return func(c *Cache) {
		if store != nil {
			c.store = store
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Cache) {
		c.log = log
	}
}

// WithLoginTimeout bounds a single provider login.
func WithLoginTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.loginTimeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCache(creds domain.Credentials, auth Authenticator, opts ...Option) *Cache {
	c := &Cache{
		creds: creds,
		auth:  auth,
		store: NewMemoryStore(),
		log:   zerolog.Nop(),
		now:   time.Now,

		loginTimeout: defaultLoginTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a valid token, logging in when none is cached or the cached one
// has expired.
func (c *Cache) Get(ctx context.Context) (domain.Token, error) {
	if err := c.creds.Validate(); err != nil {
		return domain.Token{}, err
	}
	if tok, ok := c.cached(ctx); ok {
		return tok, nil
	}

	c.mu.Lock()
	if tok, ok := c.cached(ctx); ok {
		c.mu.Unlock()
		return tok, nil
	}
	if c.inflight != nil {
		call := c.inflight
		c.mu.Unlock()
		return waitLogin(ctx, call)
	}
	call := &loginCall{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	// The login outlives the caller that started it: waiters must not see
	// another request's cancellation.
	go c.runLogin(context.WithoutCancel(ctx), call)
	return waitLogin(ctx, call)
}

// Invalidate drops the cached token so the next Get logs in again.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.store.Delete(ctx)
}

func (c *Cache) cached(ctx context.Context) (domain.Token, bool) {
	tok, ok, err := c.store.Load(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("token: cache read failed")
		return domain.Token{}, false
	}
	if !ok || !tok.ValidAt(c.now()) {
		return domain.Token{}, false
	}
	return tok, true
}

func (c *Cache) runLogin(ctx context.Context, call *loginCall) {
	ctx, cancel := context.WithTimeout(ctx, c.loginTimeout)
	defer cancel()

	call.token, call.err = c.login(ctx)

	c.mu.Lock()
	if c.inflight == call {
		c.inflight = nil
	}
	c.mu.Unlock()
	close(call.done)
}

func (c *Cache) login(ctx context.Context) (domain.Token, error) {
	resp, err := c.auth.Login(ctx, c.creds)
	if err != nil {
		metrics.ObserveTokenLogin(0, err)
		return domain.Token{}, fmt.Errorf("provider login: %w", err)
	}
	metrics.ObserveTokenLogin(resp.Status, nil)
	c.log.Info().
		Int("status", resp.Status).
		Str("body", nuvende.RedactBody(resp.Body)).
		Msg("token: login response")

	if !resp.OK() {
		return domain.Token{}, &domain.AuthError{Status: resp.Status, Body: nuvende.RedactBody(resp.Body)}
	}
	parsed, err := nuvende.ParseLogin(resp.Body)
	if err != nil {
		return domain.Token{}, &domain.AuthError{Status: resp.Status, Body: nuvende.RedactBody(resp.Body)}
	}

	tok := domain.Token{
		AccessToken: parsed.AccessToken,
		ExpiresAt:   c.now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}
	if parsed.ExpiresIn <= 0 {
		c.log.Warn().Int64("expires_in", parsed.ExpiresIn).Msg("token: not caching already expired token")
		return tok, nil
	}
	if err := c.store.Save(ctx, tok); err != nil {
		c.log.Warn().Err(err).Msg("token: cache write failed")
	}
	return tok, nil
}

func waitLogin(ctx context.Context, call *loginCall) (domain.Token, error) {
	select {
	case <-ctx.Done():
		return domain.Token{}, ctx.Err()
	case <-call.done:
		return call.token, call.err
	}
}
