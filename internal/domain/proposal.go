package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/pkg/safe"
)

// ProposalStatus represents the lifecycle state of a resolution proposal.
type ProposalStatus string

const (
	ProposalActive   ProposalStatus = "active"   // collecting votes
	ProposalExecuted ProposalStatus = "executed" // outcome applied to the market
	ProposalRejected ProposalStatus = "rejected" // superseded by another executed proposal
	ProposalLapsed   ProposalStatus = "lapsed"   // vote closed without quorum or supermajority
)

// VotingPeriod is how long a proposal accepts votes.
const VotingPeriod = 48 * time.Hour

// Proposal asserts an outcome for an ended market and collects staked votes.
type Proposal struct {
	ID           uuid.UUID      `json:"id"             db:"id"`
	MarketID     uuid.UUID      `json:"market_id"      db:"market_id"`
	Proposer     Account        `json:"proposer"       db:"proposer"`
	Outcome      bool           `json:"outcome"        db:"outcome"`
	Evidence     string         `json:"evidence"       db:"evidence"`
	Stake        uint64         `json:"stake"          db:"stake"`
	ProposedAt   time.Time      `json:"proposed_at"    db:"proposed_at"`
	VotingEndsAt time.Time      `json:"voting_ends_at" db:"voting_ends_at"`
	VotesFor     uint64         `json:"votes_for"      db:"votes_for"`
	VotesAgainst uint64         `json:"votes_against"  db:"votes_against"`
	Status       ProposalStatus `json:"status"         db:"status"`

	// ProposerCorrect is set when the proposal leaves the active state.
	ProposerCorrect *bool `json:"proposer_correct" db:"proposer_correct"`
	StakeSettled    bool  `json:"stake_settled"    db:"stake_settled"`
}

// NewProposal validates evidence and the market window and builds an active
// proposal. The market must be active and its trading window closed.
func NewProposal(m *Market, proposer Account, outcome bool, evidence string, stake uint64, now time.Time) (*Proposal, error) {
	if utf8.RuneCountInString(evidence) > MaxEvidenceLen {
		return nil, ErrEvidenceTooLong
	}
	if !m.IsActive() {
		return nil, ErrMarketNotActive
	}
	if !now.After(m.EndTime) {
		return nil, ErrMarketNotEnded
	}
	now = now.UTC()
	return &Proposal{
		ID:           ProposalKey(m.ID, proposer),
		MarketID:     m.ID,
		Proposer:     proposer,
		Outcome:      outcome,
		Evidence:     evidence,
		Stake:        stake,
		ProposedAt:   now,
		VotingEndsAt: now.Add(VotingPeriod),
		Status:       ProposalActive,
	}, nil
}

// IsActive returns true while the proposal accepts votes or execution.
func (p *Proposal) IsActive() bool {
	return p.Status == ProposalActive
}

// TotalVotes returns votes_for + votes_against.
func (p *Proposal) TotalVotes() (uint64, error) {
	return safe.Add(p.VotesFor, p.VotesAgainst)
}

// CheckVote validates that the proposal accepts votes at now.
func (p *Proposal) CheckVote(now time.Time) error {
	if !p.IsActive() {
		return ErrProposalNotActive
	}
	if !now.Before(p.VotingEndsAt) {
		return ErrVotingEnded
	}
	return nil
}

// AddVote adds weight to one side of the tally with checked arithmetic.
// The tally is left untouched on overflow.
func (p *Proposal) AddVote(weight uint64, support bool) error {
	if support {
		sum, err := safe.Add(p.VotesFor, weight)
		if err != nil {
			return err
		}
		p.VotesFor = sum
		return nil
	}
	sum, err := safe.Add(p.VotesAgainst, weight)
	if err != nil {
		return err
	}
	p.VotesAgainst = sum
	return nil
}

// CheckExecutable validates that the proposal is active and its voting
// window has closed at now.
func (p *Proposal) CheckExecutable(now time.Time) error {
	if !p.IsActive() {
		return ErrProposalNotActive
	}
	if now.Before(p.VotingEndsAt) {
		return ErrVotingNotEnded
	}
	return nil
}

// Tally evaluates the vote against cfg and returns the winning outcome
// (votes_for > votes_against). It does not mutate the proposal.
//
//	total     = for + against         (must be ≥ quorum)
//	threshold = total * percent / 100 (truncating)
//	max(for, against) must be ≥ threshold
func (p *Proposal) Tally(cfg ProtocolConfig) (outcome bool, total uint64, err error) {
	total, err = p.TotalVotes()
	if err != nil {
		return false, 0, err
	}
	if total < cfg.Quorum {
		return false, total, ErrQuorumNotReached
	}
	threshold, err := safe.MulDiv(total, uint64(cfg.SupermajorityPercent), 100)
	if err != nil {
		return false, total, err
	}
	winner := max(p.VotesFor, p.VotesAgainst)
	if winner < threshold {
		return false, total, ErrNoSupermajority
	}
	return p.VotesFor > p.VotesAgainst, total, nil
}

// CheckLapse validates that the vote closed at now without passing. Tallies
// are frozen after the deadline, so a proposal that fails here can never be
// executed. Returns ErrProposalPassed when the tally holds.
func (p *Proposal) CheckLapse(cfg ProtocolConfig, now time.Time) error {
	if err := p.CheckExecutable(now); err != nil {
		return err
	}
	_, _, err := p.Tally(cfg)
	switch {
	case err == nil:
		return ErrProposalPassed
	case IsThreshold(err):
		return nil
	default:
		return err
	}
}

// Lapse closes a proposal whose vote did not pass. No outcome was decided,
// so ProposerCorrect stays unset and the stake goes back to the proposer.
func (p *Proposal) Lapse() {
	p.Status = ProposalLapsed
}

// StakeSlashed reports whether settling the stake pays the treasury.
func (p *Proposal) StakeSlashed() bool {
	return p.ProposerCorrect != nil && !*p.ProposerCorrect
}

// Close moves the proposal out of the active state with the given status and
// records whether the proposer asserted the final outcome.
func (p *Proposal) Close(status ProposalStatus, finalOutcome bool) {
	correct := p.Outcome == finalOutcome
	p.Status = status
	p.ProposerCorrect = &correct
}

// CheckSettleStake validates that the proposer's stake may be released.
func (p *Proposal) CheckSettleStake() error {
	if p.IsActive() {
		return ErrProposalActive
	}
	if p.StakeSettled {
		return ErrStakeSettled
	}
	if p.ProposerCorrect == nil && p.Status != ProposalLapsed {
		return ErrOutcomeNotSet
	}
	return nil
}
