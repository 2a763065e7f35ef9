package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/santiagoj/homeguard/internal/models"
	"github.com/santiagoj/homeguard/internal/repository"
)

type identityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *sql.DB) repository.IdentityRepository {
	return &identityRepository{db: db}
}

func (r *identityRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	query := `
		INSERT INTO identities (key, pairing_code, display_name, phone_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	now := time.Now()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	err := r.db.QueryRowContext(ctx, query,
		identity.Key,
		identity.PairingCode,
		identity.DisplayName,
		identity.PhoneNumber,
		identity.CreatedAt,
		identity.UpdatedAt,
	).Scan(&identity.CreatedAt, &identity.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	return identity, nil
}

func (r *identityRepository) GetByKey(ctx context.Context, key string) (*models.Identity, error) {
	query := `
		SELECT key, pairing_code, display_name, phone_number, created_at, updated_at
		FROM identities
		WHERE key = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, key), "key")
}

func (r *identityRepository) GetByPairingCode(ctx context.Context, pairingCode string) (*models.Identity, error) {
	query := `
		SELECT key, pairing_code, display_name, phone_number, created_at, updated_at
		FROM identities
		WHERE pairing_code = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, pairingCode), "pairing code")
}

func (r *identityRepository) GetPairingCode(ctx context.Context, key string) (string, error) {
	query := `SELECT pairing_code FROM identities WHERE key = $1`

	var code string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&code)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get pairing code: %w", err)
	}

	return code, nil
}

func (r *identityRepository) scanOne(row *sql.Row, by string) (*models.Identity, error) {
	identity := &models.Identity{}
	err := row.Scan(
		&identity.Key,
		&identity.PairingCode,
		&identity.DisplayName,
		&identity.PhoneNumber,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get identity by %s: %w", by, err)
	}

	return identity, nil
}
