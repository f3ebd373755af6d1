// Package config loads process configuration and persists bot records.
// The env-var loading follows the pattern of
// services/jax-trade-executor/cmd/jax-trade-executor's loadConfig/getEnv
// helpers; the Postgres-backed store follows that service's hand-written
// SQL over libs/database.DB rather than an ORM.
package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"cryptobot/internal/httpapi"
	"cryptobot/libs/database"
)

// AppConfig is the process-level configuration for cmd/trader. Load reads
// the string fields from the environment via getEnv; DefaultBalance and
// DefaultRiskPercent start at fixed values that FileOverrides.Apply can
// replace, and DefaultSymbols is set only by FileOverrides.Apply.
type AppConfig struct {
	HTTPAddr           string
	PostgresDSN        string
	DefaultInterval    string
	MarketDataBaseURL  string
	DefaultSymbols     []string
	DefaultBalance     float64
	DefaultRiskPercent float64
}

func Load() AppConfig {
	return AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8090"),
		PostgresDSN:        getEnv("POSTGRES_DSN", ""),
		DefaultInterval:    getEnv("DEFAULT_INTERVAL", "1m"),
		MarketDataBaseURL:  getEnv("MARKET_DATA_BASE_URL", ""),
		DefaultBalance:     10000,
		DefaultRiskPercent: 3,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// PostgresStore persists bot records to a bot_configs table, implementing
// httpapi.BotStore. Connection pooling and retry come from
// libs/database.Connect directly: libs/database.ConnectWithMigrations calls
// a RunMigrations helper the library never defines, so this assumes the
// bot_configs table already exists rather than routing through it.
type PostgresStore struct {
	db *sql.DB
}

// Open connects to Postgres with the pooling defaults the teacher's
// trade-executor service uses, then returns a ready PostgresStore.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg := database.DefaultConfig()
	cfg.DSN = dsn
	cfg.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	cfg.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.ConnMaxLifetime = 30 * time.Minute

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return newStore(db.DB), nil
}

// newStore builds a PostgresStore around an already-open *sql.DB, letting
// tests substitute a sqlmock connection for the real driver.
func newStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ httpapi.BotStore = (*PostgresStore)(nil)

func (s *PostgresStore) SaveBot(ctx context.Context, rec httpapi.BotRecord) error {
	paramsJSON, err := json.Marshal(rec.Parameters)
	if err != nil {
		return fmt.Errorf("marshal bot parameters: %w", err)
	}

	query := `
		INSERT INTO bot_configs (id, strategy_id, symbol, mode, initial_balance, parameters, created_at_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			strategy_id = EXCLUDED.strategy_id,
			symbol = EXCLUDED.symbol,
			mode = EXCLUDED.mode,
			initial_balance = EXCLUDED.initial_balance,
			parameters = EXCLUDED.parameters
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.StrategyID, rec.Symbol, rec.Mode, rec.InitialBalance, paramsJSON, rec.CreatedAtMs)
	return err
}

func (s *PostgresStore) ListBots(ctx context.Context) ([]httpapi.BotRecord, error) {
	query := `
		SELECT id, strategy_id, symbol, mode, initial_balance, parameters, created_at_ms
		FROM bot_configs
		ORDER BY created_at_ms ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []httpapi.BotRecord
	for rows.Next() {
		var rec httpapi.BotRecord
		var paramsJSON []byte
		if err := rows.Scan(&rec.ID, &rec.StrategyID, &rec.Symbol, &rec.Mode,
			&rec.InitialBalance, &paramsJSON, &rec.CreatedAtMs); err != nil {
			return nil, err
		}
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &rec.Parameters); err != nil {
				return nil, fmt.Errorf("unmarshal parameters for bot %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteBot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bot_configs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
