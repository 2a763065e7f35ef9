// Package curfew arms deadline checks against durable jobs and evaluates
// them when due. Jobs survive restarts; the poll loop picks up this
// identity's due jobs even when the process that armed them is gone.
package curfew

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/santiagoj/homeguard/internal/geo"
	"github.com/santiagoj/homeguard/internal/metrics"
	"github.com/santiagoj/homeguard/internal/models"
	"github.com/santiagoj/homeguard/internal/notify"
	"github.com/santiagoj/homeguard/internal/repository"
)

// HomeRadiusMeters is the distance at or under which a contact counts as
// home. Exactly this distance still classifies as within bounds.
const HomeRadiusMeters = 10.0

// withinBounds classifies a distance against the home radius. The
// comparison is inclusive: exactly HomeRadiusMeters is home.
func withinBounds(distance float64) bool {
	return distance <= HomeRadiusMeters
}

// maxAttempts bounds how often an evaluation is retried before the job is
// marked failed for good.
const maxAttempts = 3

// Locator resolves a contact's most recent known position
type Locator interface {
	LatestPosition(ctx context.Context, pairingCode string) (*models.Position, error)
}

// Scheduler owns the curfew job lifecycle: arming, the background poll loop
// and the evaluation of due jobs.
type Scheduler struct {
	jobs     repository.CurfewJobRepository
	locator  Locator
	sink     notify.Sink
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	ownerKey string
	interval time.Duration
}

// NewScheduler creates a curfew scheduler polling at the given interval
func NewScheduler(
	jobs repository.CurfewJobRepository,
	locator Locator,
	sink notify.Sink,
	m *metrics.Metrics,
	logger *logrus.Logger,
	ownerKey string,
	interval time.Duration,
) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		jobs:     jobs,
		locator:  locator,
		sink:     sink,
		metrics:  m,
		logger:   logger,
		ownerKey: ownerKey,
		interval: interval,
	}
}

// Arm persists a curfew rule as a durable job and returns it. The deadline
// may already be in the past; the next poll then evaluates it immediately.
func (s *Scheduler) Arm(ctx context.Context, rule models.CurfewRule) (*models.CurfewJob, error) {
	if rule.ContactPairingCode == "" {
		return nil, fmt.Errorf("contact pairing code is required")
	}
	if rule.Deadline.IsZero() {
		return nil, fmt.Errorf("deadline is required")
	}

	job := &models.CurfewJob{
		OwnerKey:    s.ownerKey,
		PairingCode: rule.ContactPairingCode,
		DisplayName: rule.ContactDisplayName,
		Deadline:    rule.Deadline,
		HomeLat:     rule.HomeAnchor.Latitude,
		HomeLon:     rule.HomeAnchor.Longitude,
		Status:      models.CurfewJobPending,
	}

	job, err := s.jobs.Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create curfew job: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"contact":  job.PairingCode,
		"deadline": job.Deadline.Format(time.RFC3339),
	}).Info("Curfew armed")

	return job, nil
}

// List returns the owner's curfew jobs, newest first
func (s *Scheduler) List(ctx context.Context) ([]*models.CurfewJob, error) {
	return s.jobs.ListByOwner(ctx, s.ownerKey)
}

// Cancel marks a pending job cancelled so the poll loop skips it
func (s *Scheduler) Cancel(ctx context.Context, id int64) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get curfew job: %w", err)
	}
	if job == nil || job.OwnerKey != s.ownerKey {
		return fmt.Errorf("%w: curfew job %d", models.ErrContactUnresolved, id)
	}
	if job.Status != models.CurfewJobPending {
		return fmt.Errorf("curfew job %d is already %s", id, job.Status)
	}
	return s.jobs.Cancel(ctx, id)
}

// Run is the background loop that evaluates due jobs every poll interval.
// It blocks until the context is cancelled, so it should be launched in a
// separate goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Curfew scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Curfew scheduler stopped")
			return
		case <-ticker.C:
			if err := s.ProcessDue(ctx, time.Now()); err != nil {
				s.logger.Errorf("Curfew evaluation pass failed: %v", err)
			}
		}
	}
}

// ProcessDue evaluates this owner's jobs whose deadline has passed. The
// poll is scoped to the owning identity: the backend is shared, and jobs
// armed by other agents must never be consumed or reported here. Failures
// on one job never block the rest; errors are collected across the batch.
func (s *Scheduler) ProcessDue(ctx context.Context, now time.Time) error {
	due, err := s.jobs.GetDue(ctx, s.ownerKey, now)
	if err != nil {
		return fmt.Errorf("failed to get due curfew jobs: %w", err)
	}

	var result *multierror.Error
	for _, job := range due {
		if !job.IsDue() {
			continue
		}
		if err := s.evaluate(ctx, job); err != nil {
			result = multierror.Append(result, fmt.Errorf("job %d: %w", job.ID, err))
		}
	}
	return result.ErrorOrNil()
}

// evaluate runs one curfew check. An unresolved contact is reported to the
// user and retried on later passes until the attempt cap is reached.
func (s *Scheduler) evaluate(ctx context.Context, job *models.CurfewJob) error {
	name := job.DisplayName
	if name == "" {
		name = job.PairingCode
	}

	pos, err := s.locator.LatestPosition(ctx, job.PairingCode)
	if err != nil {
		attempts := job.Attempts + 1
		final := attempts >= maxAttempts

		if markErr := s.jobs.MarkFailed(ctx, job.ID, attempts, final); markErr != nil {
			return fmt.Errorf("failed to mark curfew job: %v (after: %w)", markErr, err)
		}

		if final {
			s.metrics.CurfewEvaluations.WithLabelValues("unresolved").Inc()
			s.sink.Notify("Curfew Check Failed",
				fmt.Sprintf("Could not locate %s for the curfew check.", name))
		}
		return err
	}

	anchor := job.HomeAnchor()
	distance := geo.DistanceMeters(anchor.Latitude, anchor.Longitude, pos.Latitude, pos.Longitude)
	outcome := models.CurfewOutcome{
		ContactDisplayName: name,
		DistanceMeters:     distance,
		WithinBounds:       withinBounds(distance),
		EvaluatedAt:        time.Now(),
	}

	if err := s.jobs.MarkDone(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to mark curfew job done: %w", err)
	}

	if outcome.WithinBounds {
		s.metrics.CurfewEvaluations.WithLabelValues("within").Inc()
		s.sink.Notify("Curfew Check",
			fmt.Sprintf("%s is home (%.1f m from the home spot).", name, outcome.DistanceMeters))
	} else {
		s.metrics.CurfewEvaluations.WithLabelValues("outside").Inc()
		s.sink.Notify("Curfew Alert",
			fmt.Sprintf("%s is not home yet (%.1f m from the home spot).", name, outcome.DistanceMeters))
	}

	s.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"contact":  job.PairingCode,
		"distance": fmt.Sprintf("%.2f", outcome.DistanceMeters),
		"within":   outcome.WithinBounds,
	}).Info("Curfew evaluated")

	return nil
}
