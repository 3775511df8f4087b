package postgres

import (
	"context"
	"fmt"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nodalwatch/sentinel/internal/monitor"
)

// NewPool opens a pgxpool.Pool whose query tracer chains otelpgx (spans)
// and loggingTracer (structured logs, per-request stats, and a direct
// feed into m.DBQueryDuration), and verifies connectivity before
// returning. m may be nil if metrics aren't wired up.
func NewPool(ctx context.Context, databaseURL string, m *monitor.Metrics) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.ConnConfig.Tracer = NewQueryTracer(otelpgx.NewTracer(), m)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}
