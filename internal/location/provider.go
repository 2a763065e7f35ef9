// Package location holds the device's own position. Fixes are reported by
// the host shell (GPS, network, manual); the core only consumes them.
package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/santiagoj/homeguard/internal/models"
	"github.com/santiagoj/homeguard/internal/repository"
)

const (
	// minWriteInterval throttles history writes to one sample per window
	minWriteInterval = 5 * time.Second
	// historyKeep caps the backend history per identity
	historyKeep = 30
)

// DeviceProvider keeps the last reported fix in memory and mirrors samples
// into the backend position history.
type DeviceProvider struct {
	history     repository.HistoryRepository
	identityKey string
	logger      *logrus.Logger

	last atomic.Value // *models.Position

	mu        sync.Mutex
	lastWrite time.Time
	waiters   chan struct{}
}

// NewDeviceProvider creates a provider for the given identity
func NewDeviceProvider(history repository.HistoryRepository, identityKey string, logger *logrus.Logger) *DeviceProvider {
	p := &DeviceProvider{
		history:     history,
		identityKey: identityKey,
		logger:      logger,
		waiters:     make(chan struct{}),
	}
	return p
}

// Report records a new fix. It updates the in-memory last-known position
// immediately and appends to the backend history at most once per throttle
// window, pruning old samples after each write.
func (p *DeviceProvider) Report(ctx context.Context, pos models.Position) error {
	if pos.CapturedAt.IsZero() {
		pos.CapturedAt = time.Now()
	}
	p.last.Store(&pos)

	// Wake anyone blocked in RequestFresh.
	p.mu.Lock()
	close(p.waiters)
	p.waiters = make(chan struct{})
	throttled := time.Since(p.lastWrite) < minWriteInterval
	if !throttled {
		p.lastWrite = time.Now()
	}
	p.mu.Unlock()

	if throttled {
		return nil
	}

	if err := p.history.Append(ctx, p.identityKey, &pos); err != nil {
		return fmt.Errorf("failed to record position sample: %w", err)
	}
	if err := p.history.Prune(ctx, p.identityKey, historyKeep); err != nil {
		p.logger.Warnf("Failed to prune position history: %v", err)
	}

	return nil
}

// LastKnown returns the most recent reported fix, or nil if none exists
func (p *DeviceProvider) LastKnown() *models.Position {
	if v := p.last.Load(); v != nil {
		return v.(*models.Position)
	}
	return nil
}

// RequestFresh waits for the next reported fix, up to timeout. When a
// last-known fix already exists callers should prefer LastKnown; this only
// blocks until the shell reports again.
func (p *DeviceProvider) RequestFresh(ctx context.Context, timeout time.Duration) (*models.Position, error) {
	p.mu.Lock()
	wait := p.waiters
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-wait:
		if pos := p.LastKnown(); pos != nil {
			return pos, nil
		}
		return nil, models.ErrLocationUnavailable
	case <-timer.C:
		return nil, models.ErrLocationUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
