package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/ledger"
	"github.com/oraculo/protocol/pkg/safe"
	"github.com/shopspring/decimal"
)

// LedgerRepository keeps token balances in PostgreSQL. Bound to a *sqlx.Tx it
// implements ledger.Ledger so fund moves commit together with entity writes.
type LedgerRepository struct {
	db sqlx.ExtContext
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db sqlx.ExtContext) *LedgerRepository {
	return &LedgerRepository{db: db}
}

var _ ledger.Ledger = (*LedgerRepository)(nil)

// CreateMint registers a token.
func (r *LedgerRepository) CreateMint(ctx context.Context, mint domain.Mint, authority domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mints (mint, authority) VALUES ($1, $2)`, mint, authority)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrMintExists
		}
		return fmt.Errorf("ledger_repo.CreateMint: %w", err)
	}
	return nil
}

func (r *LedgerRepository) authority(ctx context.Context, mint domain.Mint) (domain.Account, error) {
	var auth domain.Account
	err := sqlx.GetContext(ctx, r.db, &auth, `SELECT authority FROM mints WHERE mint = $1`, mint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrMintNotFound
		}
		return "", fmt.Errorf("ledger_repo.authority: %w", err)
	}
	return auth, nil
}

// lockBalance returns owner's balance with its row locked, creating a zero
// row first so the lock always has something to hold.
func (r *LedgerRepository) lockBalance(ctx context.Context, mint domain.Mint, owner domain.Account) (uint64, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO balances (mint, owner, amount) VALUES ($1, $2, 0) ON CONFLICT DO NOTHING`,
		mint, owner); err != nil {
		return 0, fmt.Errorf("ledger_repo.lockBalance upsert: %w", err)
	}
	var amount uint64
	if err := sqlx.GetContext(ctx, r.db, &amount,
		`SELECT amount FROM balances WHERE mint = $1 AND owner = $2 FOR UPDATE`,
		mint, owner); err != nil {
		return 0, fmt.Errorf("ledger_repo.lockBalance select: %w", err)
	}
	return amount, nil
}

func (r *LedgerRepository) setBalance(ctx context.Context, mint domain.Mint, owner domain.Account, amount uint64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE balances SET amount = $1, updated_at = now() WHERE mint = $2 AND owner = $3`,
		amount, mint, owner); err != nil {
		if isCheckViolation(err) {
			return domain.ErrMathOverflow
		}
		return fmt.Errorf("ledger_repo.setBalance: %w", err)
	}
	return nil
}

// Transfer moves amount of mint from one owner to another. Rows are locked in
// owner order so opposite transfers cannot deadlock.
func (r *LedgerRepository) Transfer(ctx context.Context, mint domain.Mint, from, to domain.Account, amount uint64) error {
	if _, err := r.authority(ctx, mint); err != nil {
		return err
	}

	first, second := from, to
	if second < first {
		first, second = second, first
	}
	balances := make(map[domain.Account]uint64, 2)
	for _, owner := range []domain.Account{first, second} {
		if _, seen := balances[owner]; seen {
			continue
		}
		bal, err := r.lockBalance(ctx, mint, owner)
		if err != nil {
			return err
		}
		balances[owner] = bal
	}

	debited, err := safe.Sub(balances[from], amount)
	if err != nil {
		return domain.ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	credited, err := safe.Add(balances[to], amount)
	if err != nil {
		return err
	}
	if err := r.setBalance(ctx, mint, from, debited); err != nil {
		return err
	}
	return r.setBalance(ctx, mint, to, credited)
}

// MintTo credits newly issued tokens; authority must match the mint's.
func (r *LedgerRepository) MintTo(ctx context.Context, mint domain.Mint, to domain.Account, amount uint64, authority domain.Account) error {
	auth, err := r.authority(ctx, mint)
	if err != nil {
		return err
	}
	if auth != authority {
		return domain.ErrUnauthorized
	}
	bal, err := r.lockBalance(ctx, mint, to)
	if err != nil {
		return err
	}
	credited, err := safe.Add(bal, amount)
	if err != nil {
		return err
	}
	return r.setBalance(ctx, mint, to, credited)
}

// Burn destroys tokens held by from; only the owner may burn.
func (r *LedgerRepository) Burn(ctx context.Context, mint domain.Mint, from domain.Account, amount uint64, authority domain.Account) error {
	if _, err := r.authority(ctx, mint); err != nil {
		return err
	}
	if authority != from {
		return domain.ErrUnauthorized
	}
	bal, err := r.lockBalance(ctx, mint, from)
	if err != nil {
		return err
	}
	debited, err := safe.Sub(bal, amount)
	if err != nil {
		return domain.ErrInsufficientBalance
	}
	return r.setBalance(ctx, mint, from, debited)
}

// BalanceOf returns owner's balance of mint; unknown owners hold zero.
func (r *LedgerRepository) BalanceOf(ctx context.Context, mint domain.Mint, owner domain.Account) (uint64, error) {
	if _, err := r.authority(ctx, mint); err != nil {
		return 0, err
	}
	var amount uint64
	err := sqlx.GetContext(ctx, r.db, &amount,
		`SELECT amount FROM balances WHERE mint = $1 AND owner = $2`, mint, owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("ledger_repo.BalanceOf: %w", err)
	}
	return amount, nil
}

// Supply sums every balance of mint. A total past the uint64 range is
// reported as ErrMathOverflow.
func (r *LedgerRepository) Supply(ctx context.Context, mint domain.Mint) (uint64, error) {
	if _, err := r.authority(ctx, mint); err != nil {
		return 0, err
	}
	var total decimal.Decimal
	err := sqlx.GetContext(ctx, r.db, &total,
		`SELECT COALESCE(SUM(amount), 0) FROM balances WHERE mint = $1`, mint)
	if err != nil {
		return 0, fmt.Errorf("ledger_repo.Supply: %w", err)
	}
	sum := total.BigInt()
	if !sum.IsUint64() {
		return 0, domain.ErrMathOverflow
	}
	return sum.Uint64(), nil
}

// Holdings lists owner's non-zero balances.
func (r *LedgerRepository) Holdings(ctx context.Context, owner domain.Account) ([]ledger.Balance, error) {
	var out []ledger.Balance
	err := sqlx.SelectContext(ctx, r.db, &out,
		`SELECT mint, amount FROM balances WHERE owner = $1 AND amount > 0 ORDER BY mint`, owner)
	if err != nil {
		return nil, fmt.Errorf("ledger_repo.Holdings: %w", err)
	}
	return out, nil
}
