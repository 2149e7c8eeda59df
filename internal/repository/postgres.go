package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository over an existing pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// OpenPostgres connects to dsn, verifies the connection and applies pending
// migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepository, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgresRepository(pool), nil
}

// Migrate applies all pending schema migrations to the database at dsn.
func Migrate(dsn string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migrations source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// CreateSession inserts a new session record.
func (r *PostgresRepository) CreateSession(ctx context.Context, s *Session) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO deploy_sessions (id, plan, network, chain_id, deployer, status, dry_run, error_message, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.Plan, s.Network, s.ChainID, s.Deployer, s.Status, s.DryRun, s.ErrorMessage, s.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateSession: %w", err)
	}
	return nil
}

// FinishSession sets the final status of a session.
func (r *PostgresRepository) FinishSession(ctx context.Context, id string, status Status, errMsg *string) error {
	query := `
		UPDATE deploy_sessions
		SET status = $2, error_message = $3, finished_at = NOW()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("FinishSession: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const sessionColumns = `id, plan, network, chain_id, deployer, status, dry_run, error_message, started_at, finished_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.Plan, &s.Network, &s.ChainID, &s.Deployer,
		&s.Status, &s.DryRun, &s.ErrorMessage, &s.StartedAt, &s.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession retrieves a session by ID.
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM deploy_sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetSession: %w", err)
	}
	return s, nil
}

// ListSessions returns sessions newest first.
func (r *PostgresRepository) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM deploy_sessions ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListSessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("ListSessions scan: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListSessions rows: %w", err)
	}
	return sessions, nil
}

// RecordDeployment inserts the outcome of one step.
func (r *PostgresRepository) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	query := `
		INSERT INTO deploy_steps (id, session_id, position, name, kind, status, address, tx_hash, error_message, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.SessionID, d.Position, d.Name, d.Kind, d.Status,
		d.Address, d.TxHash, d.ErrorMessage, d.StartedAt, d.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("RecordDeployment: %w", err)
	}
	return nil
}

// ListDeployments returns the recorded steps of a session in plan order.
func (r *PostgresRepository) ListDeployments(ctx context.Context, sessionID string) ([]Deployment, error) {
	query := `
		SELECT id, session_id, position, name, kind, status, address, tx_hash, error_message, started_at, finished_at
		FROM deploy_steps
		WHERE session_id = $1
		ORDER BY position ASC`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ListDeployments: %w", err)
	}
	defer rows.Close()

	var steps []Deployment
	for rows.Next() {
		var d Deployment
		if err := rows.Scan(
			&d.ID, &d.SessionID, &d.Position, &d.Name, &d.Kind, &d.Status,
			&d.Address, &d.TxHash, &d.ErrorMessage, &d.StartedAt, &d.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("ListDeployments scan: %w", err)
		}
		steps = append(steps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListDeployments rows: %w", err)
	}
	return steps, nil
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
