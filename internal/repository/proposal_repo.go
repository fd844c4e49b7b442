package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/oraculo/protocol/internal/domain"
)

// ProposalRepository handles all database operations for resolution proposals.
type ProposalRepository struct {
	db sqlx.ExtContext
}

// NewProposalRepository creates a new ProposalRepository.
func NewProposalRepository(db sqlx.ExtContext) *ProposalRepository {
	return &ProposalRepository{db: db}
}

var _ ProposalTx = (*ProposalRepository)(nil)

const proposalColumns = `id, market_id, proposer, outcome, evidence, stake, proposed_at,
	voting_ends_at, votes_for, votes_against, status, proposer_correct, stake_settled`

// Insert adds a proposal. The primary key doubles as the (market, proposer)
// uniqueness guard.
func (r *ProposalRepository) Insert(ctx context.Context, p *domain.Proposal) error {
	query := `
		INSERT INTO proposals (` + proposalColumns + `)
		VALUES
			(:id, :market_id, :proposer, :outcome, :evidence, :stake, :proposed_at,
			 :voting_ends_at, :votes_for, :votes_against, :status, :proposer_correct, :stake_settled)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, p); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrProposalExists
		}
		return fmt.Errorf("proposal_repo.Insert: %w", err)
	}
	return nil
}

// GetByID fetches a proposal by its primary key.
func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	return r.get(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id)
}

// GetForUpdate fetches a proposal and locks its row.
func (r *ProposalRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	return r.get(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1 FOR UPDATE`, id)
}

func (r *ProposalRepository) get(ctx context.Context, query string, id uuid.UUID) (*domain.Proposal, error) {
	var p domain.Proposal
	if err := sqlx.GetContext(ctx, r.db, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProposalNotFound
		}
		return nil, fmt.Errorf("proposal_repo.get: %w", err)
	}
	return &p, nil
}

// Update writes the tally, status and settlement fields.
func (r *ProposalRepository) Update(ctx context.Context, p *domain.Proposal) error {
	query := `
		UPDATE proposals
		SET votes_for        = :votes_for,
		    votes_against    = :votes_against,
		    status           = :status,
		    proposer_correct = :proposer_correct,
		    stake_settled    = :stake_settled
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.db, query, p)
	if err != nil {
		return fmt.Errorf("proposal_repo.Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrProposalNotFound
	}
	return nil
}

// ListActiveForUpdate locks all active proposals of a market.
func (r *ProposalRepository) ListActiveForUpdate(ctx context.Context, marketID uuid.UUID) ([]*domain.Proposal, error) {
	var ps []*domain.Proposal
	err := sqlx.SelectContext(ctx, r.db, &ps,
		`SELECT `+proposalColumns+` FROM proposals
		 WHERE market_id = $1 AND status = 'active'
		 ORDER BY proposed_at, id
		 FOR UPDATE`, marketID)
	if err != nil {
		return nil, fmt.Errorf("proposal_repo.ListActiveForUpdate: %w", err)
	}
	return ps, nil
}

// ListByMarket returns every proposal of a market, oldest first.
func (r *ProposalRepository) ListByMarket(ctx context.Context, marketID uuid.UUID) ([]*domain.Proposal, error) {
	var ps []*domain.Proposal
	err := sqlx.SelectContext(ctx, r.db, &ps,
		`SELECT `+proposalColumns+` FROM proposals WHERE market_id = $1 ORDER BY proposed_at, id`, marketID)
	if err != nil {
		return nil, fmt.Errorf("proposal_repo.ListByMarket: %w", err)
	}
	return ps, nil
}

// ListDue returns active proposals whose voting window closed by now.
func (r *ProposalRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Proposal, error) {
	var ps []*domain.Proposal
	err := sqlx.SelectContext(ctx, r.db, &ps,
		`SELECT `+proposalColumns+` FROM proposals
		 WHERE status = 'active' AND voting_ends_at <= $1
		 ORDER BY voting_ends_at ASC
		 LIMIT $2`, now, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("proposal_repo.ListDue: %w", err)
	}
	return ps, nil
}

// ListUnsettled returns closed proposals whose stake is still escrowed.
func (r *ProposalRepository) ListUnsettled(ctx context.Context, limit int) ([]*domain.Proposal, error) {
	var ps []*domain.Proposal
	err := sqlx.SelectContext(ctx, r.db, &ps,
		`SELECT `+proposalColumns+` FROM proposals
		 WHERE status <> 'active' AND NOT stake_settled
		 ORDER BY proposed_at, id
		 LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("proposal_repo.ListUnsettled: %w", err)
	}
	return ps, nil
}
