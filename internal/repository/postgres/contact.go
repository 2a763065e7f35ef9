package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/santiagoj/homeguard/internal/models"
	"github.com/santiagoj/homeguard/internal/repository"
)

type contactRepository struct {
	db *sql.DB
}

// NewContactRepository creates a new trusted-contact repository
func NewContactRepository(db *sql.DB) repository.ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) Add(ctx context.Context, ownerKey string, contact *models.TrustedContact) error {
	query := `
		INSERT INTO contacts (owner_key, pairing_code, display_name, phone_number, contact_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		ownerKey,
		contact.PairingCode,
		contact.DisplayName,
		contact.PhoneNumber,
		contact.OwnerIdentity,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to add contact: %w", err)
	}

	return nil
}

func (r *contactRepository) ListByOwner(ctx context.Context, ownerKey string) ([]models.TrustedContact, error) {
	query := `
		SELECT pairing_code, display_name, phone_number, contact_key,
		       latitude, longitude, captured_at, battery_level
		FROM contacts
		WHERE owner_key = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.TrustedContact
	for rows.Next() {
		var (
			contact    models.TrustedContact
			lat, lon   sql.NullFloat64
			capturedAt sql.NullTime
			battery    sql.NullInt64
		)
		if err := rows.Scan(
			&contact.PairingCode,
			&contact.DisplayName,
			&contact.PhoneNumber,
			&contact.OwnerIdentity,
			&lat,
			&lon,
			&capturedAt,
			&battery,
		); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}

		// A position is only attached when both coordinates are present.
		if lat.Valid && lon.Valid {
			pos := &models.Position{Latitude: lat.Float64, Longitude: lon.Float64}
			if capturedAt.Valid {
				pos.CapturedAt = capturedAt.Time
			}
			contact.LastKnownPosition = pos
		}
		if battery.Valid {
			level := int(battery.Int64)
			contact.BatteryLevel = &level
		}

		contacts = append(contacts, contact)
	}

	return contacts, rows.Err()
}

func (r *contactRepository) Remove(ctx context.Context, ownerKey, pairingCode string) error {
	query := `DELETE FROM contacts WHERE owner_key = $1 AND pairing_code = $2`

	result, err := r.db.ExecContext(ctx, query, ownerKey, pairingCode)
	if err != nil {
		return fmt.Errorf("failed to remove contact: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("contact %s not found for owner", pairingCode)
	}

	return nil
}

func (r *contactRepository) UpdateSample(ctx context.Context, ownerKey, pairingCode string, pos *models.Position, battery *int) error {
	query := `
		UPDATE contacts
		SET latitude = $3, longitude = $4, captured_at = $5, battery_level = $6, updated_at = $7
		WHERE owner_key = $1 AND pairing_code = $2`

	var (
		lat, lon   sql.NullFloat64
		capturedAt sql.NullTime
		level      sql.NullInt64
	)
	if pos != nil {
		lat = sql.NullFloat64{Float64: pos.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: pos.Longitude, Valid: true}
		capturedAt = sql.NullTime{Time: pos.CapturedAt, Valid: true}
	}
	if battery != nil {
		level = sql.NullInt64{Int64: int64(*battery), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, ownerKey, pairingCode, lat, lon, capturedAt, level, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update contact sample: %w", err)
	}

	return nil
}
