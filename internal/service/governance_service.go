package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// GovernanceService
// ──────────────────────────────────────────────────────────────────────────────

// GovernanceService runs the propose → vote → execute flow that finalises a
// market's outcome, and releases escrowed stake and vote weight afterwards.
type GovernanceService struct {
	store  repository.Store
	cfg    domain.ProtocolConfig
	events Publisher
	log    *slog.Logger
	now    Clock
}

// NewGovernanceService creates a GovernanceService. A nil events discards
// events.
func NewGovernanceService(store repository.Store, cfg domain.ProtocolConfig, events Publisher, log *slog.Logger) *GovernanceService {
	if events == nil {
		events = discardPublisher{}
	}
	return &GovernanceService{store: store, cfg: cfg, events: events, log: log, now: systemClock}
}

// SetClock replaces the time source.
func (s *GovernanceService) SetClock(now Clock) { s.now = now }

// ──────────────────────────────────────────────────────────────────────────────
// ProposeResolution
// ──────────────────────────────────────────────────────────────────────────────

// ProposeResolution opens a vote on outcome for an ended market and escrows
// the proposer's stake.
func (s *GovernanceService) ProposeResolution(ctx context.Context, proposer domain.Account, marketID uuid.UUID, outcome bool, evidence string) (*domain.Proposal, error) {
	now := s.now()
	var p *domain.Proposal

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		m, err := tx.Markets().GetForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		if p, err = domain.NewProposal(m, proposer, outcome, evidence, s.cfg.ProposalStake, now); err != nil {
			return err
		}
		if err = tx.Proposals().Insert(ctx, p); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		if err = tx.Ledger().Transfer(ctx, s.cfg.GovernanceMint, proposer, domain.StakeAccount(p.ID), p.Stake); err != nil {
			return fmt.Errorf("escrow stake: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("governance_service.ProposeResolution: %w", err)
	}

	s.log.Info("resolution proposed", "market", marketID, "proposal", p.ID, "outcome", outcome)
	s.events.Publish(ctx, domain.ResolutionProposed{
		Market:       marketID,
		Proposal:     p.ID,
		Proposer:     proposer,
		Outcome:      outcome,
		Evidence:     evidence,
		VotingEndsAt: p.VotingEndsAt,
	})
	return p, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Vote
// ──────────────────────────────────────────────────────────────────────────────

// Vote escrows weight governance tokens from voter and adds them to one side
// of the proposal's tally. A voter votes at most once per proposal.
func (s *GovernanceService) Vote(ctx context.Context, voter domain.Account, proposalID uuid.UUID, weight uint64, support bool) (*domain.Proposal, error) {
	now := s.now()
	var p *domain.Proposal

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		if p, err = tx.Proposals().GetForUpdate(ctx, proposalID); err != nil {
			return err
		}
		if err = p.CheckVote(now); err != nil {
			return err
		}
		// Check before Insert: a failed INSERT poisons a PostgreSQL transaction.
		_, err = tx.Votes().GetForUpdate(ctx, proposalID, voter)
		switch {
		case err == nil:
			return domain.ErrAlreadyVoted
		case !errors.Is(err, domain.ErrVoteNotFound):
			return fmt.Errorf("lookup vote: %w", err)
		}
		if weight == 0 {
			return domain.ErrInvalidAmount
		}
		if err = p.AddVote(weight, support); err != nil {
			return err
		}

		rec := &domain.VoteRecord{
			ProposalID: proposalID,
			Voter:      voter,
			Weight:     weight,
			Support:    support,
			VotedAt:    now.UTC(),
		}
		if err = tx.Votes().Insert(ctx, rec); err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}
		if err = tx.Ledger().Transfer(ctx, s.cfg.GovernanceMint, voter, domain.EscrowAccount(proposalID), weight); err != nil {
			return fmt.Errorf("escrow weight: %w", err)
		}
		if err = tx.Proposals().Update(ctx, p); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("governance_service.Vote: %w", err)
	}

	s.events.Publish(ctx, domain.VoteCast{
		Proposal:     proposalID,
		Voter:        voter,
		Weight:       weight,
		Support:      support,
		VotesFor:     p.VotesFor,
		VotesAgainst: p.VotesAgainst,
	})
	return p, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// ExecuteResolution
// ──────────────────────────────────────────────────────────────────────────────

// ExecuteResolution tallies a proposal whose vote has closed and, if quorum
// and supermajority hold, resolves its market. Every other active proposal
// on the market is rejected in the same transaction. Anyone may call it.
//
// Lock order is market, then proposals, as in ProposeResolution.
func (s *GovernanceService) ExecuteResolution(ctx context.Context, proposalID uuid.UUID) (*domain.MarketResolved, error) {
	now := s.now()
	var ev domain.MarketResolved

	// MarketID never changes, so an unlocked read is enough to find the market.
	snap, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("governance_service.ExecuteResolution: %w", err)
	}

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		m, err := tx.Markets().GetForUpdate(ctx, snap.MarketID)
		if err != nil {
			return err
		}
		p, err := tx.Proposals().GetForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		if err = p.CheckExecutable(now); err != nil {
			return err
		}
		if !m.IsActive() {
			return domain.ErrMarketNotActive
		}
		outcome, total, err := p.Tally(s.cfg)
		if err != nil {
			return err
		}

		if err = m.Resolve(outcome, now); err != nil {
			return err
		}
		if err = tx.Markets().Update(ctx, m); err != nil {
			return fmt.Errorf("update market: %w", err)
		}
		p.Close(domain.ProposalExecuted, outcome)
		if err = tx.Proposals().Update(ctx, p); err != nil {
			return fmt.Errorf("update proposal: %w", err)
		}

		siblings, err := tx.Proposals().ListActiveForUpdate(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("list siblings: %w", err)
		}
		var rejected []uuid.UUID
		for _, sib := range siblings {
			if sib.ID == p.ID {
				continue
			}
			sib.Close(domain.ProposalRejected, outcome)
			if err = tx.Proposals().Update(ctx, sib); err != nil {
				return fmt.Errorf("reject %s: %w", sib.ID, err)
			}
			rejected = append(rejected, sib.ID)
		}

		ev = domain.MarketResolved{
			Market:          m.ID,
			Proposal:        p.ID,
			Outcome:         outcome,
			TotalVotes:      total,
			ProposerCorrect: *p.ProposerCorrect,
			Rejected:        rejected,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("governance_service.ExecuteResolution: %w", err)
	}

	s.log.Info("market resolved", "market", ev.Market, "proposal", ev.Proposal,
		"outcome", ev.Outcome, "total_votes", ev.TotalVotes, "rejected", len(ev.Rejected))
	s.events.Publish(ctx, ev)
	return &ev, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// LapseProposal
// ──────────────────────────────────────────────────────────────────────────────

// LapseProposal closes a proposal whose vote ended without quorum or
// supermajority. Its stake is then refunded and its votes reclaimable, and
// other proposals on the market are unaffected. Anyone may call it.
func (s *GovernanceService) LapseProposal(ctx context.Context, proposalID uuid.UUID) (*domain.ResolutionLapsed, error) {
	now := s.now()
	var ev *domain.ResolutionLapsed

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		p, err := tx.Proposals().GetForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		if err = p.CheckLapse(s.cfg, now); err != nil {
			return err
		}
		ev, err = s.lapse(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("governance_service.LapseProposal: %w", err)
	}

	s.publishLapsed(ctx, ev)
	return ev, nil
}

// lapseIfFailed closes p inside tx when its vote has ended without passing.
// It returns nil when p is closed already or can still be executed.
func (s *GovernanceService) lapseIfFailed(ctx context.Context, tx repository.Tx, p *domain.Proposal, now time.Time) (*domain.ResolutionLapsed, error) {
	if !p.IsActive() || p.CheckLapse(s.cfg, now) != nil {
		return nil, nil
	}
	return s.lapse(ctx, tx, p)
}

func (s *GovernanceService) lapse(ctx context.Context, tx repository.Tx, p *domain.Proposal) (*domain.ResolutionLapsed, error) {
	p.Lapse()
	if err := tx.Proposals().Update(ctx, p); err != nil {
		return nil, fmt.Errorf("lapse: %w", err)
	}
	return &domain.ResolutionLapsed{
		Market:       p.MarketID,
		Proposal:     p.ID,
		VotesFor:     p.VotesFor,
		VotesAgainst: p.VotesAgainst,
	}, nil
}

func (s *GovernanceService) publishLapsed(ctx context.Context, ev *domain.ResolutionLapsed) {
	if ev == nil {
		return
	}
	s.log.Info("resolution lapsed", "market", ev.Market, "proposal", ev.Proposal,
		"votes_for", ev.VotesFor, "votes_against", ev.VotesAgainst)
	s.events.Publish(ctx, *ev)
}

// ──────────────────────────────────────────────────────────────────────────────
// Stake and vote release
// ──────────────────────────────────────────────────────────────────────────────

// SettleProposalStake releases a closed proposal's stake: back to the
// proposer when it asserted the final outcome or its vote lapsed, to the
// treasury otherwise. A proposal whose vote ended without passing is lapsed
// first.
func (s *GovernanceService) SettleProposalStake(ctx context.Context, proposalID uuid.UUID) (*domain.StakeSettled, error) {
	now := s.now()
	var (
		ev     domain.StakeSettled
		lapsed *domain.ResolutionLapsed
	)

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		p, err := tx.Proposals().GetForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		if lapsed, err = s.lapseIfFailed(ctx, tx, p, now); err != nil {
			return err
		}
		if err = p.CheckSettleStake(); err != nil {
			return err
		}
		recipient := p.Proposer
		slashed := p.StakeSlashed()
		if slashed {
			recipient = s.cfg.Treasury
		}
		if err = tx.Ledger().Transfer(ctx, s.cfg.GovernanceMint, domain.StakeAccount(p.ID), recipient, p.Stake); err != nil {
			return fmt.Errorf("release stake: %w", err)
		}
		p.StakeSettled = true
		if err = tx.Proposals().Update(ctx, p); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		ev = domain.StakeSettled{
			Proposal:  p.ID,
			Proposer:  p.Proposer,
			Recipient: recipient,
			Amount:    p.Stake,
			Slashed:   slashed,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("governance_service.SettleProposalStake: %w", err)
	}

	s.publishLapsed(ctx, lapsed)
	s.events.Publish(ctx, ev)
	return &ev, nil
}

// ReclaimVote returns a voter's escrowed weight once the proposal is closed.
// A proposal whose vote ended without passing is lapsed first.
func (s *GovernanceService) ReclaimVote(ctx context.Context, voter domain.Account, proposalID uuid.UUID) (*domain.VoteRecord, error) {
	now := s.now()
	var (
		rec    *domain.VoteRecord
		lapsed *domain.ResolutionLapsed
	)

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		p, err := tx.Proposals().GetForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		if lapsed, err = s.lapseIfFailed(ctx, tx, p, now); err != nil {
			return err
		}
		if rec, err = tx.Votes().GetForUpdate(ctx, proposalID, voter); err != nil {
			return err
		}
		if err = rec.CheckReclaim(p); err != nil {
			return err
		}
		if err = tx.Ledger().Transfer(ctx, s.cfg.GovernanceMint, domain.EscrowAccount(proposalID), voter, rec.Weight); err != nil {
			return fmt.Errorf("release weight: %w", err)
		}
		rec.Reclaimed = true
		if err = tx.Votes().Update(ctx, rec); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("governance_service.ReclaimVote: %w", err)
	}

	s.publishLapsed(ctx, lapsed)
	s.events.Publish(ctx, domain.VoteReclaimed{Proposal: proposalID, Voter: voter, Weight: rec.Weight})
	return rec, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// GetProposal returns one proposal.
func (s *GovernanceService) GetProposal(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	return s.store.GetProposal(ctx, id)
}

// ListProposals returns every proposal on a market.
func (s *GovernanceService) ListProposals(ctx context.Context, marketID uuid.UUID) ([]*domain.Proposal, error) {
	if _, err := s.store.GetMarket(ctx, marketID); err != nil {
		return nil, err
	}
	return s.store.ListProposals(ctx, marketID)
}

// GetVote returns a voter's record on a proposal.
func (s *GovernanceService) GetVote(ctx context.Context, proposalID uuid.UUID, voter domain.Account) (*domain.VoteRecord, error) {
	return s.store.GetVote(ctx, proposalID, voter)
}

// ListDue returns active proposals whose vote has closed.
func (s *GovernanceService) ListDue(ctx context.Context, limit int) ([]*domain.Proposal, error) {
	return s.store.ListDueProposals(ctx, s.now(), limit)
}

// ListUnsettled returns closed proposals whose stake is still escrowed.
func (s *GovernanceService) ListUnsettled(ctx context.Context, limit int) ([]*domain.Proposal, error) {
	return s.store.ListUnsettledProposals(ctx, limit)
}
