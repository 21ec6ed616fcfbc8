package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/models"
)

// Postgres wraps a postgres DB connection holding the ad source catalogue.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS ad_sources (
    network TEXT PRIMARY KEY,
    ad_unit_id TEXT NOT NULL,
    priority INT NOT NULL,
    reward_amount INT NOT NULL,
    load_delay_ms BIGINT NOT NULL,
    show_duration_ms BIGINT NOT NULL,
    reload_delay_ms BIGINT NOT NULL,
    preload_after_show BOOLEAN NOT NULL DEFAULT TRUE,
    fill_rate DOUBLE PRECISION NOT NULL DEFAULT 1,
    completion_rate DOUBLE PRECISION NOT NULL DEFAULT 1,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_ad_sources_enabled_priority ON ad_sources (enabled, priority);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SeedAdSources inserts defaults when the catalogue is empty. It returns the
// number of rows inserted.
func (p *Postgres) SeedAdSources(ctx context.Context, defaults []models.SourceConfig) (int, error) {
	var count int
	if err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM ad_sources`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count ad_sources: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	for _, cfg := range defaults {
		if err := p.UpsertAdSource(ctx, cfg); err != nil {
			return 0, err
		}
	}
	return len(defaults), nil
}

// LoadAdSources returns the enabled sources ordered by priority.
func (p *Postgres) LoadAdSources(ctx context.Context) ([]models.SourceConfig, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT network, ad_unit_id, priority, reward_amount, load_delay_ms, show_duration_ms, reload_delay_ms, preload_after_show, fill_rate, completion_rate, enabled FROM ad_sources WHERE enabled ORDER BY priority, network`)
	if err != nil {
		return nil, fmt.Errorf("query ad sources: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []models.SourceConfig
	for rows.Next() {
		var (
			cfg                      models.SourceConfig
			network                  string
			loadMS, showMS, reloadMS int64
		)
		if err := rows.Scan(&network, &cfg.AdUnitID, &cfg.Priority, &cfg.RewardAmount, &loadMS, &showMS, &reloadMS, &cfg.PreloadAfterShow, &cfg.FillRate, &cfg.CompletionRate, &cfg.Enabled); err != nil {
			return nil, fmt.Errorf("scan ad source: %w", err)
		}
		cfg.Network = models.ParseNetworkID(network)
		cfg.LoadDelay = time.Duration(loadMS) * time.Millisecond
		cfg.ShowDuration = time.Duration(showMS) * time.Millisecond
		cfg.ReloadDelay = time.Duration(reloadMS) * time.Millisecond
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// UpsertAdSource inserts or replaces the catalogue row for cfg.Network.
func (p *Postgres) UpsertAdSource(ctx context.Context, cfg models.SourceConfig) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO ad_sources (
        network, ad_unit_id, priority, reward_amount, load_delay_ms,
        show_duration_ms, reload_delay_ms, preload_after_show, fill_rate,
        completion_rate, enabled) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (network) DO UPDATE SET
        ad_unit_id=EXCLUDED.ad_unit_id, priority=EXCLUDED.priority,
        reward_amount=EXCLUDED.reward_amount, load_delay_ms=EXCLUDED.load_delay_ms,
        show_duration_ms=EXCLUDED.show_duration_ms, reload_delay_ms=EXCLUDED.reload_delay_ms,
        preload_after_show=EXCLUDED.preload_after_show, fill_rate=EXCLUDED.fill_rate,
        completion_rate=EXCLUDED.completion_rate, enabled=EXCLUDED.enabled,
        updated_at=CURRENT_TIMESTAMP`,
		string(cfg.Network), cfg.AdUnitID, cfg.Priority, cfg.RewardAmount,
		cfg.LoadDelay.Milliseconds(), cfg.ShowDuration.Milliseconds(), cfg.ReloadDelay.Milliseconds(),
		cfg.PreloadAfterShow, cfg.FillRate, cfg.CompletionRate, cfg.Enabled)
	if err != nil {
		return fmt.Errorf("upsert ad source %s: %w", cfg.Network, err)
	}
	return nil
}

// SetAdSourceEnabled toggles a catalogue row. It returns sql.ErrNoRows when
// the network is unknown.
func (p *Postgres) SetAdSourceEnabled(ctx context.Context, network models.NetworkID, enabled bool) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE ad_sources SET enabled=$1, updated_at=CURRENT_TIMESTAMP WHERE network=$2`, enabled, string(network))
	if err != nil {
		return fmt.Errorf("update ad source %s: %w", network, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ad source %s: %w", network, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
