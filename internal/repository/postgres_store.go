package repository

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/ledger"
)

// PostgresStore is the production Store. Each InTx call is one PostgreSQL
// transaction; entity rows are locked with SELECT … FOR UPDATE.
type PostgresStore struct {
	db        *sqlx.DB
	markets   *MarketRepository
	proposals *ProposalRepository
	votes     *VoteRepository
	ledger    *LedgerRepository
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:        db,
		markets:   NewMarketRepository(db),
		proposals: NewProposalRepository(db),
		votes:     NewVoteRepository(db),
		ledger:    NewLedgerRepository(db),
	}
}

var _ Store = (*PostgresStore)(nil)

type pgTx struct{ tx *sqlx.Tx }

func (t pgTx) Markets() MarketTx     { return NewMarketRepository(t.tx) }
func (t pgTx) Proposals() ProposalTx { return NewProposalRepository(t.tx) }
func (t pgTx) Votes() VoteTx         { return NewVoteRepository(t.tx) }
func (t pgTx) Ledger() ledger.Ledger { return NewLedgerRepository(t.tx) }

// InTx implements Store.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.InTx: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store.InTx: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMarket(ctx context.Context, id uuid.UUID) (*domain.Market, error) {
	return s.markets.GetByID(ctx, id)
}

func (s *PostgresStore) ListMarkets(ctx context.Context, f MarketFilter) ([]*domain.Market, int, error) {
	return s.markets.List(ctx, f)
}

func (s *PostgresStore) GetProposal(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	return s.proposals.GetByID(ctx, id)
}

func (s *PostgresStore) ListProposals(ctx context.Context, marketID uuid.UUID) ([]*domain.Proposal, error) {
	return s.proposals.ListByMarket(ctx, marketID)
}

func (s *PostgresStore) ListDueProposals(ctx context.Context, now time.Time, limit int) ([]*domain.Proposal, error) {
	return s.proposals.ListDue(ctx, now, limit)
}

func (s *PostgresStore) ListUnsettledProposals(ctx context.Context, limit int) ([]*domain.Proposal, error) {
	return s.proposals.ListUnsettled(ctx, limit)
}

func (s *PostgresStore) GetVote(ctx context.Context, proposalID uuid.UUID, voter domain.Account) (*domain.VoteRecord, error) {
	return s.votes.Get(ctx, proposalID, voter)
}

func (s *PostgresStore) BalanceOf(ctx context.Context, mint domain.Mint, owner domain.Account) (uint64, error) {
	return s.ledger.BalanceOf(ctx, mint, owner)
}

func (s *PostgresStore) Holdings(ctx context.Context, owner domain.Account) ([]ledger.Balance, error) {
	return s.ledger.Holdings(ctx, owner)
}

func (s *PostgresStore) Supply(ctx context.Context, mint domain.Mint) (uint64, error) {
	return NewLedgerRepository(s.db).Supply(ctx, mint)
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	return s.markets.Stats(ctx)
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

//go:embed schema.sql
var schemaSQL string

// Migrate creates the schema if it does not exist. Every statement is
// idempotent, so calling it on each start is safe.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store.Migrate: %w", err)
	}
	return nil
}
