package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/faultline/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PoolConfig tunes the connection pool. Zero values keep pgxpool defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string, poolCfg PoolConfig) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if poolCfg.MaxConns > 0 {
		config.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		config.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// CreateEvent inserts an event in a single statement.
func (r *PostgresRepository) CreateEvent(ctx context.Context, e *models.Event) (string, error) {
	query := `
		INSERT INTO events (
			id, project_id, exception_type, exception_message, severity,
			line_number, context_start_line, context_text, function_name, module_name,
			filename, absolute_path, runtime_name, runtime_version, runtime_build,
			platform, server_name, timestamp
		)
		VALUES (
			$1, $2, $3, NULLIF($4, ''), $5,
			$6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''),
			NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''),
			NULLIF($16, ''), NULLIF($17, ''), $18
		)
	`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.ProjectID, e.ExceptionType, e.ExceptionMessage, e.Severity,
		e.LineNumber, e.ContextStartLine, e.ContextText, e.FunctionName, e.ModuleName,
		e.Filename, e.AbsolutePath, e.RuntimeName, e.RuntimeVersion, e.RuntimeBuild,
		e.Platform, e.ServerName, e.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", fmt.Errorf("%w: %w: %s", ErrPersistence, ErrEventExists, e.ID)
		}
		return "", fmt.Errorf("%w: failed to create event: %v", ErrPersistence, err)
	}

	return e.ID, nil
}

// GetEvent retrieves an event by ID
func (r *PostgresRepository) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	query := `
		SELECT
			id::text, project_id, exception_type, COALESCE(exception_message, ''), severity,
			line_number, context_start_line, COALESCE(context_text, ''),
			COALESCE(function_name, ''), COALESCE(module_name, ''),
			COALESCE(filename, ''), COALESCE(absolute_path, ''),
			COALESCE(runtime_name, ''), COALESCE(runtime_version, ''), COALESCE(runtime_build, ''),
			COALESCE(platform, ''), COALESCE(server_name, ''), timestamp
		FROM events
		WHERE id::text = $1
	`

	e := &models.Event{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.ProjectID, &e.ExceptionType, &e.ExceptionMessage, &e.Severity,
		&e.LineNumber, &e.ContextStartLine, &e.ContextText,
		&e.FunctionName, &e.ModuleName,
		&e.Filename, &e.AbsolutePath,
		&e.RuntimeName, &e.RuntimeVersion, &e.RuntimeBuild,
		&e.Platform, &e.ServerName, &e.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	e.Timestamp = e.Timestamp.UTC()

	return e, nil
}

// ListChannels returns a project's notification channels in creation order.
func (r *PostgresRepository) ListChannels(ctx context.Context, projectID string) ([]models.NotificationChannel, error) {
	query := `
		SELECT
			id, project_id, title, COALESCE(description, ''), kind, target_url,
			COALESCE(channel_name, ''), COALESCE(username, ''), created_at
		FROM notification_channels
		WHERE project_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	channels := []models.NotificationChannel{}
	for rows.Next() {
		var ch models.NotificationChannel
		var kind string
		if err := rows.Scan(
			&ch.ID, &ch.ProjectID, &ch.Title, &ch.Description, &kind, &ch.TargetURL,
			&ch.ChannelName, &ch.Username, &ch.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		ch.Kind = models.ParseChannelKind(kind)
		channels = append(channels, ch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return channels, nil
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
