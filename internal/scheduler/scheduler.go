// Package scheduler runs the background callers of the governance flow:
//  1. resolutionLoop – executes proposals whose voting window has closed, or
//     lapses them when the tally missed quorum or supermajority.
//  2. stakeLoop      – refunds or slashes the stake of closed proposals.
//
// Both are ordinary callers of the public operations; anything they do can
// also be done through the API.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/internal/config"
	"github.com/oraculo/protocol/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dependencies
// ──────────────────────────────────────────────────────────────────────────────

// Governance is the subset of service.GovernanceService the scheduler drives.
type Governance interface {
	ListDue(ctx context.Context, limit int) ([]*domain.Proposal, error)
	ExecuteResolution(ctx context.Context, proposalID uuid.UUID) (*domain.MarketResolved, error)
	LapseProposal(ctx context.Context, proposalID uuid.UUID) (*domain.ResolutionLapsed, error)
	ListUnsettled(ctx context.Context, limit int) ([]*domain.Proposal, error)
	SettleProposalStake(ctx context.Context, proposalID uuid.UUID) (*domain.StakeSettled, error)
}

// Locker serialises a pass across replicas. Implemented by redis.LockManager.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler periodically executes due proposals and settles stakes. Call
// Start(ctx) once from main(); cancel the context to shut it down.
type Scheduler struct {
	gov    Governance
	locker Locker // nil = single replica, no locking
	cfg    config.SchedulerConfig
	logger *slog.Logger
}

// NewScheduler creates a Scheduler. locker may be nil.
func NewScheduler(gov Governance, locker Locker, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		gov:    gov,
		locker: locker,
		cfg:    cfg,
		logger: logger,
	}
}

// Start launches the background goroutines. It returns immediately; all
// loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx, "resolutionLoop", s.ExecuteDue)
	go s.loop(ctx, "stakeLoop", s.SettleStakes)
	s.logger.Info("scheduler started", "interval", s.cfg.Interval, "batch", s.cfg.BatchSize)
}

func (s *Scheduler) loop(ctx context.Context, name string, pass func(context.Context) (int, error)) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(name+": shutting down")
			return
		case <-ticker.C:
			s.runPass(ctx, name, pass)
		}
	}
}

// runPass runs one pass under the replica lock, recovering from panics.
func (s *Scheduler) runPass(ctx context.Context, name string, pass func(context.Context) (int, error)) {
	defer s.recoverAndLog(name)

	if s.locker != nil {
		unlock, err := s.locker.Acquire(ctx, "scheduler:"+name, s.cfg.LockTTL)
		if err != nil {
			s.logger.Debug(name+": lock not acquired", "err", err)
			return
		}
		defer unlock()
	}

	n, err := pass(ctx)
	if err != nil {
		s.logger.Error(name+": pass failed", "err", err)
		return
	}
	if n > 0 {
		s.logger.Info(name+": pass done", "processed", n)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Passes
// ──────────────────────────────────────────────────────────────────────────────

// ExecuteDue closes every due proposal and returns how many it closed:
// executed when the tally passes, lapsed when it misses a threshold.
// Proposals that lost a race to a sibling are skipped without failing the
// pass.
func (s *Scheduler) ExecuteDue(ctx context.Context) (int, error) {
	due, err := s.gov.ListDue(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, p := range due {
		res, err := s.gov.ExecuteResolution(ctx, p.ID)
		switch {
		case err == nil:
			closed++
			s.logger.Info("proposal executed", "proposal", p.ID, "market", res.Market, "outcome", res.Outcome)
		case domain.IsThreshold(err):
			if _, err := s.gov.LapseProposal(ctx, p.ID); err != nil {
				s.logger.Warn("lapse failed", "proposal", p.ID, "err", err)
				continue
			}
			closed++
			s.logger.Info("proposal lapsed", "proposal", p.ID)
		case errors.Is(err, domain.ErrProposalNotActive), errors.Is(err, domain.ErrMarketNotActive):
			s.logger.Debug("proposal already closed", "proposal", p.ID)
		default:
			s.logger.Warn("execute failed", "proposal", p.ID, "err", err)
		}
	}
	return closed, nil
}

// SettleStakes releases the stake of every closed, unsettled proposal.
func (s *Scheduler) SettleStakes(ctx context.Context) (int, error) {
	pending, err := s.gov.ListUnsettled(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, p := range pending {
		ev, err := s.gov.SettleProposalStake(ctx, p.ID)
		if err != nil {
			if !errors.Is(err, domain.ErrStakeSettled) {
				s.logger.Warn("settle stake failed", "proposal", p.ID, "err", err)
			}
			continue
		}
		settled++
		s.logger.Info("stake settled", "proposal", p.ID, "recipient", ev.Recipient, "slashed", ev.Slashed)
	}
	return settled, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred inside each pass to catch unexpected panics,
// log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
