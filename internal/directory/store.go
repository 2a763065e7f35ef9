// Package directory owns the trusted-contact directory: the authoritative
// backend view and the locally persisted snapshot used for offline reads.
package directory

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/santiagoj/homeguard/internal/metrics"
	"github.com/santiagoj/homeguard/internal/models"
	"github.com/santiagoj/homeguard/internal/phone"
	"github.com/santiagoj/homeguard/internal/repository"
)

const pairingCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const pairingCodeLength = 6

// Store reconciles the authoritative remote directory with a local snapshot.
// The snapshot is replaced wholesale by a successful Refresh and never
// partially merged; readers always see either the pre- or post-refresh state.
type Store struct {
	identities repository.IdentityRepository
	contacts   repository.ContactRepository
	history    repository.HistoryRepository
	index      repository.PairingIndex

	identityKey  string
	snapshotPath string
	logger       *logrus.Logger
	metrics      *metrics.Metrics

	snapshot atomic.Value // *models.DirectorySnapshot

	// Profile recorded by EnsureIdentity so a registration that failed at
	// startup can be retried during Refresh.
	profileName  atomic.String
	profilePhone atomic.String
}

// NewStore creates a directory store for the given identity. Any snapshot
// persisted by a previous run is loaded so offline reads work immediately.
func NewStore(
	identities repository.IdentityRepository,
	contacts repository.ContactRepository,
	history repository.HistoryRepository,
	index repository.PairingIndex,
	identityKey, snapshotPath string,
	logger *logrus.Logger,
	m *metrics.Metrics,
) *Store {
	s := &Store{
		identities:   identities,
		contacts:     contacts,
		history:      history,
		index:        index,
		identityKey:  identityKey,
		snapshotPath: snapshotPath,
		logger:       logger,
		metrics:      m,
	}

	snap := s.loadPersisted()
	if snap == nil {
		snap = &models.DirectorySnapshot{}
	}
	s.snapshot.Store(snap)

	return s
}

// EnsureIdentity registers this device with the backend if it is not known
// yet, generating a shareable pairing code for it. The profile is remembered
// even when the backend call fails, so Refresh can complete the registration
// later.
func (s *Store) EnsureIdentity(ctx context.Context, displayName, phoneNumber string) (*models.Identity, error) {
	s.profileName.Store(displayName)
	s.profilePhone.Store(phoneNumber)

	identity, err := s.identities.GetByKey(ctx, s.identityKey)
	if err != nil {
		return nil, classify(err)
	}
	if identity != nil {
		return identity, nil
	}

	code, err := generatePairingCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate pairing code: %w", err)
	}

	identity = &models.Identity{
		Key:         s.identityKey,
		PairingCode: code,
		DisplayName: displayName,
		PhoneNumber: phone.Normalize(phoneNumber),
	}
	identity, err = s.identities.Create(ctx, identity)
	if err != nil {
		return nil, classify(err)
	}

	s.logger.Infof("Registered identity with pairing code %s", identity.PairingCode)
	return identity, nil
}

// Refresh performs the authoritative fetch: own pairing code first, then the
// contact list enriched with each contact's latest position sample. On
// success the held snapshot is replaced wholesale and persisted locally.
func (s *Store) Refresh(ctx context.Context) (*models.DirectorySnapshot, error) {
	snap, err := s.fetch(ctx)
	if err != nil {
		s.metrics.DirectoryRefreshes.WithLabelValues("failure").Inc()
		return nil, err
	}

	s.snapshot.Store(snap)
	s.persist(snap)
	s.metrics.DirectoryRefreshes.WithLabelValues("success").Inc()

	s.logger.WithField("contacts", len(snap.Contacts)).Info("Directory snapshot refreshed")
	return snap, nil
}

func (s *Store) fetch(ctx context.Context) (*models.DirectorySnapshot, error) {
	ownCode, err := s.identities.GetPairingCode(ctx, s.identityKey)
	if err != nil {
		return nil, classify(err)
	}
	if ownCode == "" {
		// Registration at startup may not have reached the backend.
		// Retry it before giving up on the refresh.
		identity, err := s.EnsureIdentity(ctx, s.profileName.Load(), s.profilePhone.Load())
		if err != nil {
			return nil, err
		}
		ownCode = identity.PairingCode
	}

	contacts, err := s.contacts.ListByOwner(ctx, s.identityKey)
	if err != nil {
		return nil, classify(err)
	}

	for i := range contacts {
		c := &contacts[i]
		if c.OwnerIdentity == "" {
			continue
		}
		latest, err := s.history.Latest(ctx, c.OwnerIdentity)
		if err != nil {
			return nil, classify(err)
		}
		if latest == nil {
			continue
		}
		if c.LastKnownPosition == nil || latest.CapturedAt.After(c.LastKnownPosition.CapturedAt) {
			c.LastKnownPosition = latest
			// Best effort: mirror the fresh sample onto the contact row.
			if err := s.contacts.UpdateSample(ctx, s.identityKey, c.PairingCode, latest, c.BatteryLevel); err != nil {
				s.logger.Warnf("Failed to sync sample for %s: %v", c.PairingCode, err)
			}
		}
	}

	return &models.DirectorySnapshot{
		OwnPairingCode: ownCode,
		Contacts:       contacts,
		FetchedAt:      time.Now(),
	}, nil
}

// Snapshot returns the last successfully replaced snapshot without touching
// the network. It never fails; an empty snapshot is a valid state.
func (s *Store) Snapshot() *models.DirectorySnapshot {
	return s.snapshot.Load().(*models.DirectorySnapshot)
}

// ResolveByPairingCode translates a pairing code into a registered identity.
// The Redis index is consulted first; misses fall back to the backend's
// indexed lookup and backfill the index. Returns (nil, nil) when no identity
// owns the code.
func (s *Store) ResolveByPairingCode(ctx context.Context, code string) (*models.Identity, error) {
	if key, err := s.index.Get(ctx, code); err != nil {
		s.logger.Warnf("Pairing index lookup failed: %v", err)
	} else if key != "" {
		identity, err := s.identities.GetByKey(ctx, key)
		if err != nil {
			return nil, classify(err)
		}
		if identity != nil && identity.PairingCode == code {
			return identity, nil
		}
		// Stale entry: drop it and fall through to the authoritative lookup.
		if err := s.index.Delete(ctx, code); err != nil {
			s.logger.Warnf("Failed to drop stale pairing index entry: %v", err)
		}
	}

	identity, err := s.identities.GetByPairingCode(ctx, code)
	if err != nil {
		return nil, classify(err)
	}
	if identity == nil {
		return nil, nil
	}

	if err := s.index.Set(ctx, code, identity.Key); err != nil {
		s.logger.Warnf("Failed to backfill pairing index: %v", err)
	}

	return identity, nil
}

// AddContact pairs this device with the identity owning the given code. The
// duplicate check runs against the local snapshot, so discovering an
// existing pairing needs no network access.
func (s *Store) AddContact(ctx context.Context, code string) (*models.TrustedContact, error) {
	snap := s.Snapshot()

	if code == snap.OwnPairingCode {
		return nil, models.ErrSelfPairing
	}
	if snap.FindContact(code) != nil {
		return nil, models.ErrAlreadyPaired
	}

	identity, err := s.ResolveByPairingCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, models.ErrContactUnresolved
	}
	if identity.Key == s.identityKey {
		return nil, models.ErrSelfPairing
	}

	contact := &models.TrustedContact{
		DisplayName:   identity.DisplayName,
		PairingCode:   identity.PairingCode,
		PhoneNumber:   phone.Normalize(identity.PhoneNumber),
		OwnerIdentity: identity.Key,
	}
	if err := s.contacts.Add(ctx, s.identityKey, contact); err != nil {
		return nil, classify(err)
	}

	s.appendToSnapshot(*contact)

	s.logger.Infof("Paired with %s (%s)", contact.DisplayName, contact.PairingCode)
	return contact, nil
}

// RemoveContact unpairs a contact. Existence is checked against the local
// snapshot; only the backend write itself needs connectivity.
func (s *Store) RemoveContact(ctx context.Context, code string) error {
	snap := s.Snapshot()
	if snap.FindContact(code) == nil {
		return fmt.Errorf("%w: %s", models.ErrContactUnresolved, code)
	}

	if err := s.contacts.Remove(ctx, s.identityKey, code); err != nil {
		return classify(err)
	}

	s.removeFromSnapshot(code)
	return nil
}

// LatestPosition resolves a contact's most recent position sample from the
// authoritative history. Both a missing identity and an empty history yield
// ErrContactUnresolved.
func (s *Store) LatestPosition(ctx context.Context, pairingCode string) (*models.Position, error) {
	identity, err := s.ResolveByPairingCode(ctx, pairingCode)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, fmt.Errorf("%w: no identity for code %s", models.ErrContactUnresolved, pairingCode)
	}

	pos, err := s.history.Latest(ctx, identity.Key)
	if err != nil {
		return nil, classify(err)
	}
	if pos == nil {
		return nil, fmt.Errorf("%w: no samples for %s", models.ErrContactUnresolved, pairingCode)
	}

	return pos, nil
}

// RecentPositions returns up to n most recent samples for a contact
func (s *Store) RecentPositions(ctx context.Context, pairingCode string, n int) ([]models.Position, error) {
	identity, err := s.ResolveByPairingCode(ctx, pairingCode)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, fmt.Errorf("%w: no identity for code %s", models.ErrContactUnresolved, pairingCode)
	}

	positions, err := s.history.LatestN(ctx, identity.Key, n)
	if err != nil {
		return nil, classify(err)
	}
	return positions, nil
}

// appendToSnapshot replaces the snapshot with a copy including the new
// contact. Readers never observe a partially updated snapshot.
func (s *Store) appendToSnapshot(contact models.TrustedContact) {
	old := s.Snapshot()
	next := &models.DirectorySnapshot{
		OwnPairingCode: old.OwnPairingCode,
		Contacts:       make([]models.TrustedContact, 0, len(old.Contacts)+1),
		FetchedAt:      old.FetchedAt,
	}
	next.Contacts = append(next.Contacts, old.Contacts...)
	next.Contacts = append(next.Contacts, contact)

	s.snapshot.Store(next)
	s.persist(next)
}

func (s *Store) removeFromSnapshot(code string) {
	old := s.Snapshot()
	next := &models.DirectorySnapshot{
		OwnPairingCode: old.OwnPairingCode,
		FetchedAt:      old.FetchedAt,
	}
	for _, c := range old.Contacts {
		if c.PairingCode != code {
			next.Contacts = append(next.Contacts, c)
		}
	}

	s.snapshot.Store(next)
	s.persist(next)
}

// persist writes the snapshot to disk via rename so a crash mid-write can
// never leave a torn file behind.
func (s *Store) persist(snap *models.DirectorySnapshot) {
	if s.snapshotPath == "" {
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Errorf("Failed to encode directory snapshot: %v", err)
		return
	}

	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		s.logger.Errorf("Failed to write directory snapshot: %v", err)
		return
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		s.logger.Errorf("Failed to replace directory snapshot: %v", err)
	}
}

func (s *Store) loadPersisted() *models.DirectorySnapshot {
	if s.snapshotPath == "" {
		return nil
	}

	data, err := os.ReadFile(filepath.Clean(s.snapshotPath))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warnf("Failed to read directory snapshot: %v", err)
		}
		return nil
	}

	snap := &models.DirectorySnapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		s.logger.Warnf("Discarding unreadable directory snapshot: %v", err)
		return nil
	}

	return snap
}

func generatePairingCode() (string, error) {
	buf := make([]byte, pairingCodeLength)
	max := big.NewInt(int64(len(pairingCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = pairingCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// classify maps backend errors onto the store's error taxonomy
func classify(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", models.ErrNetworkUnavailable, err)
	}

	return fmt.Errorf("%w: %v", models.ErrRemoteFailure, err)
}
