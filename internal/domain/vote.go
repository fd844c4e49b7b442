package domain

import (
	"time"

	"github.com/google/uuid"
)

// VoteRecord gates double voting and records the escrowed weight.
// There is at most one per (proposal, voter).
type VoteRecord struct {
	ProposalID uuid.UUID `json:"proposal_id" db:"proposal_id"`
	Voter      Account   `json:"voter"       db:"voter"`
	Weight     uint64    `json:"weight"      db:"weight"`
	Support    bool      `json:"support"     db:"support"`
	VotedAt    time.Time `json:"voted_at"    db:"voted_at"`
	Reclaimed  bool      `json:"reclaimed"   db:"reclaimed"`
}

// CheckReclaim validates that the voter may take back the escrowed weight of
// a vote on p.
func (v *VoteRecord) CheckReclaim(p *Proposal) error {
	if p.IsActive() {
		return ErrProposalActive
	}
	if v.Reclaimed {
		return ErrVoteReclaimed
	}
	return nil
}
