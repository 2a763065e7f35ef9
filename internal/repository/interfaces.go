package repository

import (
	"context"
	"time"

	"github.com/santiagoj/homeguard/internal/models"
)

// IdentityRepository defines the interface for registered-device operations
// against the authoritative directory backend.
type IdentityRepository interface {
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	GetByKey(ctx context.Context, key string) (*models.Identity, error)
	// GetByPairingCode is the indexed lookup that replaces the full scan of
	// all registered identities.
	GetByPairingCode(ctx context.Context, pairingCode string) (*models.Identity, error)
	GetPairingCode(ctx context.Context, key string) (string, error)
}

// ContactRepository defines the interface for trusted-contact operations.
// Contacts are keyed by the owning identity plus the pairing code.
type ContactRepository interface {
	Add(ctx context.Context, ownerKey string, contact *models.TrustedContact) error
	ListByOwner(ctx context.Context, ownerKey string) ([]models.TrustedContact, error)
	Remove(ctx context.Context, ownerKey, pairingCode string) error
	UpdateSample(ctx context.Context, ownerKey, pairingCode string, pos *models.Position, battery *int) error
}

// HistoryRepository defines the interface for position history samples
type HistoryRepository interface {
	Append(ctx context.Context, identityKey string, pos *models.Position) error
	Latest(ctx context.Context, identityKey string) (*models.Position, error)
	LatestN(ctx context.Context, identityKey string, n int) ([]models.Position, error)
	Prune(ctx context.Context, identityKey string, keep int) error
}

// CurfewJobRepository defines the interface for durable curfew jobs. All
// reads are scoped to the owning identity: the backend is shared between
// agents and each agent may only consume its own jobs.
type CurfewJobRepository interface {
	Create(ctx context.Context, job *models.CurfewJob) (*models.CurfewJob, error)
	GetByID(ctx context.Context, id int64) (*models.CurfewJob, error)
	GetDue(ctx context.Context, ownerKey string, now time.Time) ([]*models.CurfewJob, error)
	ListByOwner(ctx context.Context, ownerKey string) ([]*models.CurfewJob, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, final bool) error
	Cancel(ctx context.Context, id int64) error
}

// PairingIndex is the pairing-code → identity-key cache consulted on the
// inbound-message path before falling back to the backend lookup.
type PairingIndex interface {
	Get(ctx context.Context, pairingCode string) (string, error)
	Set(ctx context.Context, pairingCode, identityKey string) error
	Delete(ctx context.Context, pairingCode string) error
}
