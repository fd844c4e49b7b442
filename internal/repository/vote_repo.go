package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/oraculo/protocol/internal/domain"
)

// VoteRepository handles vote records. The (proposal_id, voter) primary key
// is what rejects a second vote.
type VoteRepository struct {
	db sqlx.ExtContext
}

// NewVoteRepository creates a new VoteRepository.
func NewVoteRepository(db sqlx.ExtContext) *VoteRepository {
	return &VoteRepository{db: db}
}

var _ VoteTx = (*VoteRepository)(nil)

// Insert records a vote or returns domain.ErrAlreadyVoted.
func (r *VoteRepository) Insert(ctx context.Context, v *domain.VoteRecord) error {
	query := `
		INSERT INTO votes (proposal_id, voter, weight, support, voted_at, reclaimed)
		VALUES (:proposal_id, :voter, :weight, :support, :voted_at, :reclaimed)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, v); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyVoted
		}
		return fmt.Errorf("vote_repo.Insert: %w", err)
	}
	return nil
}

// Get fetches a single vote record.
func (r *VoteRepository) Get(ctx context.Context, proposalID uuid.UUID, voter domain.Account) (*domain.VoteRecord, error) {
	return r.get(ctx, `SELECT * FROM votes WHERE proposal_id = $1 AND voter = $2`, proposalID, voter)
}

// GetForUpdate fetches and locks a vote record.
func (r *VoteRepository) GetForUpdate(ctx context.Context, proposalID uuid.UUID, voter domain.Account) (*domain.VoteRecord, error) {
	return r.get(ctx, `SELECT * FROM votes WHERE proposal_id = $1 AND voter = $2 FOR UPDATE`, proposalID, voter)
}

func (r *VoteRepository) get(ctx context.Context, query string, proposalID uuid.UUID, voter domain.Account) (*domain.VoteRecord, error) {
	var v domain.VoteRecord
	if err := sqlx.GetContext(ctx, r.db, &v, query, proposalID, voter); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrVoteNotFound
		}
		return nil, fmt.Errorf("vote_repo.get: %w", err)
	}
	return &v, nil
}

// Update persists the reclaimed flag.
func (r *VoteRepository) Update(ctx context.Context, v *domain.VoteRecord) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE votes SET reclaimed = $1 WHERE proposal_id = $2 AND voter = $3`,
		v.Reclaimed, v.ProposalID, v.Voter)
	if err != nil {
		return fmt.Errorf("vote_repo.Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrVoteNotFound
	}
	return nil
}
