package models

import "time"

// Identity represents a device registered with the directory backend
type Identity struct {
	Key         string    `json:"key" db:"key"`
	PairingCode string    `json:"pairing_code" db:"pairing_code"`
	DisplayName string    `json:"display_name" db:"display_name"`
	PhoneNumber string    `json:"phone_number" db:"phone_number"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// TrustedContact is a directory entry for another paired device. PhoneNumber
// is stored in E.164 form and may be empty for network-only contacts; the
// SMS fallback channel is unavailable for those.
type TrustedContact struct {
	DisplayName       string    `json:"display_name" db:"display_name"`
	PairingCode       string    `json:"pairing_code" db:"pairing_code"`
	PhoneNumber       string    `json:"phone_number" db:"phone_number"`
	OwnerIdentity     string    `json:"owner_identity" db:"owner_identity"`
	LastKnownPosition *Position `json:"last_known_position,omitempty"`
	BatteryLevel      *int      `json:"battery_level,omitempty" db:"battery_level"`
}

// DirectorySnapshot is the complete local copy of the trusted-contact list
// plus the local identity's own pairing code. Snapshots are replaced
// wholesale by a successful refresh, never merged.
type DirectorySnapshot struct {
	OwnPairingCode string           `json:"own_pairing_code"`
	Contacts       []TrustedContact `json:"contacts"`
	FetchedAt      time.Time        `json:"fetched_at"`
}

// FindContact returns the contact with the given pairing code, or nil.
// Pairing codes are opaque and compared by exact string equality.
func (s *DirectorySnapshot) FindContact(pairingCode string) *TrustedContact {
	for i := range s.Contacts {
		if s.Contacts[i].PairingCode == pairingCode {
			return &s.Contacts[i]
		}
	}
	return nil
}
