package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pix-gateway/internal/domain"
	"pix-gateway/internal/infra/metrics"
)

// Postgres stores business events. Charge payloads and credentials never
// reach it.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.BusinessMetricRepo = (*Postgres)(nil)

const schemaBusinessMetrics = `
CREATE TABLE IF NOT EXISTS business_metrics (
	id          BIGSERIAL PRIMARY KEY,
	event       TEXT        NOT NULL,
	metadata    JSONB,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the business_metrics table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, schemaBusinessMetrics)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_schema", "business_metrics", start, err)
	if err != nil {
		return fmt.Errorf("create business_metrics: %w", err)
	}
	return nil
}

// RecordBusinessMetric appends one event.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var payload []byte
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, metadata, occurred_at)
VALUES ($1, $2, $3)
`, metric.Event, payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return err
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}
