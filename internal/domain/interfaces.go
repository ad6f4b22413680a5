package domain

import "context"

// TokenStore holds the single cached provider token. Load reports false when
// nothing is stored; validity against the clock is the caller's concern.
type TokenStore interface {
	Load(ctx context.Context) (Token, bool, error)
	Save(ctx context.Context, token Token) error
	Delete(ctx context.Context) error
}

// IdempotencyStore keeps the first successful response for an idempotency key.
type IdempotencyStore interface {
	Lookup(key string) ([]byte, bool, error)
	// Save stores value unless key already exists; stored reports whether it wrote.
	Save(key string, value []byte) (stored bool, err error)
}
