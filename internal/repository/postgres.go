package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jack/golang-shortlink-service/internal/config"
	"github.com/jack/golang-shortlink-service/internal/model"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrCodeNotFound  = errors.New("shortcode not found")
	ErrDuplicateCode = errors.New("shortcode already exists")
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(cfg *config.PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// InsertRecord persists a new shortcode record. Uniqueness is enforced by the
// unique index on code: a concurrent insert of the same code loses with
// ErrDuplicateCode instead of overwriting.
func (r *PostgresRepository) InsertRecord(ctx context.Context, record *model.ShortcodeRecord) error {
	query := `
		INSERT INTO shortcodes (code, target_url, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, is_active
	`

	err := r.pool.QueryRow(ctx, query, record.Code, record.TargetURL, record.ExpiresAt).Scan(
		&record.ID,
		&record.CreatedAt,
		&record.IsActive,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to insert shortcode: %w", err)
	}

	return nil
}

// GetByCode retrieves a record by its normalized code, regardless of its
// active flag or expiry.
func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (*model.ShortcodeRecord, error) {
	query := `
		SELECT id, code, target_url, created_at, expires_at, is_active, click_count, click_history
		FROM shortcodes
		WHERE code = $1
	`

	var record model.ShortcodeRecord
	var history []byte
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&record.ID,
		&record.Code,
		&record.TargetURL,
		&record.CreatedAt,
		&record.ExpiresAt,
		&record.IsActive,
		&record.ClickCount,
		&history,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get shortcode: %w", err)
	}

	if err := json.Unmarshal(history, &record.ClickHistory); err != nil {
		return nil, fmt.Errorf("failed to unmarshal click history: %w", err)
	}

	return &record, nil
}

// CodeExists reports whether a code was ever issued, including deactivated
// records.
func (r *PostgresRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM shortcodes WHERE code = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check code existence: %w", err)
	}

	return exists, nil
}

// RecordClick appends a click event and bumps the click count in one UPDATE.
// The statement is the atomicity boundary: concurrent redirects serialize on
// the row, so no increment is ever lost and the history order reflects the
// store's serialization order. History is trimmed to the bound in the same
// statement, oldest entry first.
func (r *PostgresRepository) RecordClick(ctx context.Context, code string, event model.ClickEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal click event: %w", err)
	}

	query := `
		UPDATE shortcodes
		SET click_count = click_count + 1,
		    click_history = CASE
		        WHEN jsonb_array_length(click_history) >= $3 THEN (click_history - 0) || $2::jsonb
		        ELSE click_history || $2::jsonb
		    END
		WHERE code = $1 AND is_active = TRUE AND expires_at > now()
	`

	result, err := r.pool.Exec(ctx, query, code, payload, model.MaxClickHistory)
	if err != nil {
		return fmt.Errorf("failed to record click: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrCodeNotFound
	}

	return nil
}

// Deactivate flips the active flag off. Matching is by raw code existence,
// not by the active flag, so deactivating an already-inactive record still
// succeeds.
func (r *PostgresRepository) Deactivate(ctx context.Context, code string) error {
	query := `UPDATE shortcodes SET is_active = FALSE WHERE code = $1`

	result, err := r.pool.Exec(ctx, query, code)
	if err != nil {
		return fmt.Errorf("failed to deactivate shortcode: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrCodeNotFound
	}

	return nil
}

// DeactivateExpired flips the active flag off for all past-expiry records and
// returns their codes so callers can invalidate caches. Records are never
// physically deleted.
func (r *PostgresRepository) DeactivateExpired(ctx context.Context) ([]string, error) {
	query := `
		UPDATE shortcodes
		SET is_active = FALSE
		WHERE is_active = TRUE AND expires_at < now()
		RETURNING code
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate expired shortcodes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan swept code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read swept codes: %w", err)
	}

	return codes, nil
}

// Health checks the database connection
func (r *PostgresRepository) Health(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
