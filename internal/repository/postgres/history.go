package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/santiagoj/homeguard/internal/models"
	"github.com/santiagoj/homeguard/internal/repository"
)

type historyRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new position-history repository
func NewHistoryRepository(db *sql.DB) repository.HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Append(ctx context.Context, identityKey string, pos *models.Position) error {
	query := `
		INSERT INTO position_history (identity_key, latitude, longitude, captured_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.ExecContext(ctx, query, identityKey, pos.Latitude, pos.Longitude, pos.CapturedAt)
	if err != nil {
		return fmt.Errorf("failed to append position sample: %w", err)
	}

	return nil
}

func (r *historyRepository) Latest(ctx context.Context, identityKey string) (*models.Position, error) {
	query := `
		SELECT latitude, longitude, captured_at
		FROM position_history
		WHERE identity_key = $1
		ORDER BY captured_at DESC
		LIMIT 1`

	pos := &models.Position{}
	err := r.db.QueryRowContext(ctx, query, identityKey).Scan(
		&pos.Latitude,
		&pos.Longitude,
		&pos.CapturedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest position: %w", err)
	}

	return pos, nil
}

func (r *historyRepository) LatestN(ctx context.Context, identityKey string, n int) ([]models.Position, error) {
	query := `
		SELECT latitude, longitude, captured_at
		FROM position_history
		WHERE identity_key = $1
		ORDER BY captured_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, identityKey, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query position history: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var pos models.Position
		if err := rows.Scan(&pos.Latitude, &pos.Longitude, &pos.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position sample: %w", err)
		}
		positions = append(positions, pos)
	}

	return positions, rows.Err()
}

func (r *historyRepository) Prune(ctx context.Context, identityKey string, keep int) error {
	query := `
		DELETE FROM position_history
		WHERE identity_key = $1
		  AND id NOT IN (
			SELECT id FROM position_history
			WHERE identity_key = $1
			ORDER BY captured_at DESC
			LIMIT $2
		)`

	_, err := r.db.ExecContext(ctx, query, identityKey, keep)
	if err != nil {
		return fmt.Errorf("failed to prune position history: %w", err)
	}

	return nil
}
