package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"invoice-audit-engine/internal/config"
	"invoice-audit-engine/internal/utils"
)

// Persistence snapshots the whole store into a single JSONB row. The store
// stays authoritative in memory; Postgres is the durability layer.
type Persistence struct {
	pool *pgxpool.Pool
}

const snapshotKey = "main"

// NewPersistence opens a pooled connection and ensures the snapshot table.
func NewPersistence(cfg *config.Config) (*Persistence, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Persistence{pool: pool}
	if err := p.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Persistence) init(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS app_state (
			id TEXT PRIMARY KEY,
			data JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create app_state table: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Persistence) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// HealthCheck verifies database connectivity.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Save persists the store snapshot.
func (p *Persistence) Save(ctx context.Context, s *Store) error {
	snap := s.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO app_state (id, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		snapshotKey, payload)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	utils.GetLogger().Debug("store snapshot saved",
		utils.Int("bytes", len(payload)))
	return nil
}

// Load restores the store from the persisted snapshot. A missing row is
// not an error; the store simply starts empty.
func (p *Persistence) Load(ctx context.Context, s *Store) error {
	var payload []byte
	err := p.pool.QueryRow(ctx,
		`SELECT data FROM app_state WHERE id = $1`, snapshotKey).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	s.Replace(snap)

	utils.GetLogger().Info("store snapshot loaded",
		utils.Int("invoices", len(snap.Invoices)),
		utils.Int("purchase_orders", len(snap.PurchaseOrders)),
		utils.Int("anomalies", len(snap.Anomalies)))
	return nil
}
