// Package repository persists markets, proposals, votes and ledger balances
// behind a transactional Store. Every mutating protocol operation runs inside
// one Store.InTx call and either commits all of its writes or none of them.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/ledger"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Transaction-scoped repositories
// ──────────────────────────────────────────────────────────────────────────────

// MarketTx accesses markets inside a transaction.
type MarketTx interface {
	// Insert fails with domain.ErrMarketExists on a duplicate ID.
	Insert(ctx context.Context, m *domain.Market) error
	// GetForUpdate loads and locks a market until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Market, error)
	Update(ctx context.Context, m *domain.Market) error
	// RecordBettor reports whether user is betting on the market for the
	// first time.
	RecordBettor(ctx context.Context, marketID uuid.UUID, user domain.Account) (bool, error)
}

// ProposalTx accesses proposals inside a transaction.
type ProposalTx interface {
	// Insert fails with domain.ErrProposalExists on a duplicate ID.
	Insert(ctx context.Context, p *domain.Proposal) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Proposal, error)
	Update(ctx context.Context, p *domain.Proposal) error
	// ListActiveForUpdate locks every active proposal on a market.
	ListActiveForUpdate(ctx context.Context, marketID uuid.UUID) ([]*domain.Proposal, error)
}

// VoteTx accesses vote records inside a transaction.
type VoteTx interface {
	// Insert fails with domain.ErrAlreadyVoted when the voter already has a
	// record for the proposal.
	Insert(ctx context.Context, v *domain.VoteRecord) error
	GetForUpdate(ctx context.Context, proposalID uuid.UUID, voter domain.Account) (*domain.VoteRecord, error)
	Update(ctx context.Context, v *domain.VoteRecord) error
}

// Tx is the unit of work handed to Store.InTx callbacks.
type Tx interface {
	Markets() MarketTx
	Proposals() ProposalTx
	Votes() VoteTx
	Ledger() ledger.Ledger
}

// ──────────────────────────────────────────────────────────────────────────────
// Read side
// ──────────────────────────────────────────────────────────────────────────────

// MarketFilter narrows ListMarkets. Zero values match everything.
type MarketFilter struct {
	Status   domain.MarketStatus
	Category domain.Category
	Limit    int
	Offset   int
}

// Stats are protocol-wide running totals derived from stored markets.
type Stats struct {
	TotalMarkets    int             `json:"total_markets"    db:"total_markets"`
	ActiveMarkets   int             `json:"active_markets"   db:"active_markets"`
	ResolvedMarkets int             `json:"resolved_markets" db:"resolved_markets"`
	TotalVolume     decimal.Decimal `json:"total_volume"     db:"total_volume"`
	ActiveProposals int             `json:"active_proposals" db:"active_proposals"`
}

// Reader serves queries outside of transactions.
type Reader interface {
	GetMarket(ctx context.Context, id uuid.UUID) (*domain.Market, error)
	ListMarkets(ctx context.Context, f MarketFilter) ([]*domain.Market, int, error)
	GetProposal(ctx context.Context, id uuid.UUID) (*domain.Proposal, error)
	ListProposals(ctx context.Context, marketID uuid.UUID) ([]*domain.Proposal, error)
	// ListDueProposals returns active proposals whose voting ended at or
	// before now, oldest deadline first.
	ListDueProposals(ctx context.Context, now time.Time, limit int) ([]*domain.Proposal, error)
	// ListUnsettledProposals returns closed proposals whose stake has not
	// been refunded or slashed.
	ListUnsettledProposals(ctx context.Context, limit int) ([]*domain.Proposal, error)
	GetVote(ctx context.Context, proposalID uuid.UUID, voter domain.Account) (*domain.VoteRecord, error)
	BalanceOf(ctx context.Context, mint domain.Mint, owner domain.Account) (uint64, error)
	Holdings(ctx context.Context, owner domain.Account) ([]ledger.Balance, error)
	// Supply sums every balance of mint.
	Supply(ctx context.Context, mint domain.Mint) (uint64, error)
	Stats(ctx context.Context) (Stats, error)
}

// Store is a Reader that can also run transactions.
type Store interface {
	Reader
	// InTx runs fn in a transaction. A non-nil error from fn rolls back
	// every write fn made, including ledger moves.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
