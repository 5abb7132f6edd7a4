package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avealis/inboxpilot/internal/domain"
)

// ListAgentConfigs выполняет "холодную загрузку" всех конфигураций при старте.
func (s *Store) ListAgentConfigs(ctx context.Context) ([]domain.AgentConfig, error) {
	query := `
		SELECT id, user_id, name, autonomy_level, check_interval_ms, batch_size, rules, created_at, updated_at
		FROM agent_configs ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query agent configs: %w", err)
	}
	defer rows.Close()

	results := make([]domain.AgentConfig, 0)
	for rows.Next() {
		cfg, err := scanAgentConfig(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, cfg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

func (s *Store) GetAgentConfig(ctx context.Context, id string) (domain.AgentConfig, error) {
	query := `
		SELECT id, user_id, name, autonomy_level, check_interval_ms, batch_size, rules, created_at, updated_at
		FROM agent_configs WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	cfg, err := scanAgentConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AgentConfig{}, domain.ErrAgentNotFound
		}
		return domain.AgentConfig{}, err
	}
	return cfg, nil
}

// SaveAgentConfig — upsert целого снапшота. Частичных апдейтов нет:
// конфигурация всегда пишется и читается одним куском.
func (s *Store) SaveAgentConfig(ctx context.Context, cfg domain.AgentConfig) (domain.AgentConfig, error) {
	cfg = cfg.Normalize()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}
	cfg.UpdatedAt = time.Now()

	query := `
		INSERT INTO agent_configs (id, user_id, name, autonomy_level, check_interval_ms, batch_size, rules, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
		    name = EXCLUDED.name,
		    autonomy_level = EXCLUDED.autonomy_level,
		    check_interval_ms = EXCLUDED.check_interval_ms,
		    batch_size = EXCLUDED.batch_size,
		    rules = EXCLUDED.rules,
		    updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		cfg.ID, cfg.UserID, cfg.Name, string(cfg.Autonomy),
		cfg.CheckInterval.Milliseconds(), cfg.BatchSize, cfg.Rules,
		cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return domain.AgentConfig{}, fmt.Errorf("postgres: failed to save agent config: %w", err)
	}
	return cfg, nil
}

func scanAgentConfig(row pgx.Row) (domain.AgentConfig, error) {
	var (
		cfg        domain.AgentConfig
		autonomy   string
		intervalMs int64
	)
	err := row.Scan(
		&cfg.ID, &cfg.UserID, &cfg.Name, &autonomy,
		&intervalMs, &cfg.BatchSize, &cfg.Rules,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AgentConfig{}, err
		}
		return domain.AgentConfig{}, fmt.Errorf("postgres: failed to scan agent config: %w", err)
	}
	cfg.Autonomy = domain.AutonomyLevel(autonomy)
	cfg.CheckInterval = time.Duration(intervalMs) * time.Millisecond
	return cfg, nil
}
