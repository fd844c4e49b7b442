package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/oraculo/protocol/internal/domain"
)

// MarketRepository handles all database operations for Markets. Bound to a
// *sqlx.DB it serves reads; bound to a *sqlx.Tx it implements MarketTx.
type MarketRepository struct {
	db sqlx.ExtContext
}

// NewMarketRepository creates a new MarketRepository.
func NewMarketRepository(db sqlx.ExtContext) *MarketRepository {
	return &MarketRepository{db: db}
}

var _ MarketTx = (*MarketRepository)(nil)

const marketColumns = `id, creator, question, description, category, resolution_source,
	end_time, resolution_time, status, outcome, resolved_at,
	yes_pool, no_pool, total_liquidity, volume, unique_bettors, created_at`

// Insert adds a new market row.
func (r *MarketRepository) Insert(ctx context.Context, m *domain.Market) error {
	query := `
		INSERT INTO markets (` + marketColumns + `)
		VALUES
			(:id, :creator, :question, :description, :category, :resolution_source,
			 :end_time, :resolution_time, :status, :outcome, :resolved_at,
			 :yes_pool, :no_pool, :total_liquidity, :volume, :unique_bettors, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, m); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrMarketExists
		}
		return fmt.Errorf("market_repo.Insert: %w", err)
	}
	return nil
}

// GetByID fetches a market by its primary key.
func (r *MarketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Market, error) {
	return r.get(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
}

// GetForUpdate fetches a market and locks its row for the transaction.
func (r *MarketRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Market, error) {
	return r.get(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1 FOR UPDATE`, id)
}

func (r *MarketRepository) get(ctx context.Context, query string, id uuid.UUID) (*domain.Market, error) {
	var m domain.Market
	if err := sqlx.GetContext(ctx, r.db, &m, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("market_repo.get: %w", err)
	}
	return &m, nil
}

// Update writes the mutable market fields.
func (r *MarketRepository) Update(ctx context.Context, m *domain.Market) error {
	query := `
		UPDATE markets
		SET status          = :status,
		    outcome         = :outcome,
		    resolved_at     = :resolved_at,
		    yes_pool        = :yes_pool,
		    no_pool         = :no_pool,
		    total_liquidity = :total_liquidity,
		    volume          = :volume,
		    unique_bettors  = :unique_bettors
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.db, query, m)
	if err != nil {
		return fmt.Errorf("market_repo.Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketNotFound
	}
	return nil
}

// RecordBettor inserts (market, user) into market_bettors and reports whether
// the row is new.
func (r *MarketRepository) RecordBettor(ctx context.Context, marketID uuid.UUID, user domain.Account) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO market_bettors (market_id, account) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		marketID, user)
	if err != nil {
		return false, fmt.Errorf("market_repo.RecordBettor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("market_repo.RecordBettor rows: %w", err)
	}
	return n == 1, nil
}

// List returns a page of markets matching f plus the total match count.
func (r *MarketRepository) List(ctx context.Context, f MarketFilter) ([]*domain.Market, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, `SELECT COUNT(*) FROM markets`+cond, args...); err != nil {
		return nil, 0, fmt.Errorf("market_repo.List count: %w", err)
	}

	args = append(args, clampLimit(f.Limit), max(f.Offset, 0))
	query := fmt.Sprintf(`SELECT %s FROM markets%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		marketColumns, cond, len(args)-1, len(args))
	var markets []*domain.Market
	if err := sqlx.SelectContext(ctx, r.db, &markets, query, args...); err != nil {
		return nil, 0, fmt.Errorf("market_repo.List select: %w", err)
	}
	return markets, total, nil
}

// Stats aggregates protocol-wide totals.
func (r *MarketRepository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := sqlx.GetContext(ctx, r.db, &s, `
		SELECT
			(SELECT COUNT(*) FROM markets)                          AS total_markets,
			(SELECT COUNT(*) FROM markets WHERE status = 'active')   AS active_markets,
			(SELECT COUNT(*) FROM markets WHERE status = 'resolved') AS resolved_markets,
			(SELECT COALESCE(SUM(volume), 0) FROM markets)           AS total_volume,
			(SELECT COUNT(*) FROM proposals WHERE status = 'active') AS active_proposals`)
	if err != nil {
		return Stats{}, fmt.Errorf("market_repo.Stats: %w", err)
	}
	return s, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// PostgreSQL error helpers
// ──────────────────────────────────────────────────────────────────────────────

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool { return pqCode(err) == pqUniqueViolation }

func isCheckViolation(err error) bool { return pqCode(err) == pqCheckViolation }
