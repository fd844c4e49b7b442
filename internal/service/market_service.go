package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/pricing"
	"github.com/oraculo/protocol/internal/repository"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// MarketService
// ──────────────────────────────────────────────────────────────────────────────

// MarketService creates markets and prices trades against them. Ledger moves
// and market writes of one call share a single store transaction.
type MarketService struct {
	store  repository.Store
	cfg    domain.ProtocolConfig
	events Publisher
	log    *slog.Logger
	now    Clock
}

// NewMarketService creates a MarketService. A nil events discards events.
func NewMarketService(store repository.Store, cfg domain.ProtocolConfig, events Publisher, log *slog.Logger) *MarketService {
	if events == nil {
		events = discardPublisher{}
	}
	return &MarketService{store: store, cfg: cfg, events: events, log: log, now: systemClock}
}

// SetClock replaces the time source.
func (s *MarketService) SetClock(now Clock) { s.now = now }

// ──────────────────────────────────────────────────────────────────────────────
// CreateMarket
// ──────────────────────────────────────────────────────────────────────────────

// CreateMarket validates params, registers the market's claim mints and locks
// the creator's initial liquidity in the market vault.
func (s *MarketService) CreateMarket(ctx context.Context, creator domain.Account, p domain.CreateMarketParams) (*domain.Market, error) {
	m, err := domain.NewMarket(creator, p, s.cfg.MinLiquidity, s.now())
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Markets().Insert(ctx, m); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		authority := domain.MarketAuthority(m.ID)
		for _, mint := range []domain.Mint{domain.YesMint(m.ID), domain.NoMint(m.ID)} {
			if err := tx.Ledger().CreateMint(ctx, mint, authority); err != nil {
				return fmt.Errorf("create mint %s: %w", mint, err)
			}
		}
		if err := tx.Ledger().Transfer(ctx, s.cfg.SettlementMint, creator, domain.VaultAccount(m.ID), p.InitialLiquidity); err != nil {
			return fmt.Errorf("lock liquidity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("market_service.CreateMarket: %w", err)
	}

	s.log.Info("market created", "market", m.ID, "creator", creator, "liquidity", p.InitialLiquidity)
	s.events.Publish(ctx, domain.MarketCreated{
		Market:           m.ID,
		Creator:          creator,
		Question:         m.Question,
		Category:         m.Category,
		EndTime:          m.EndTime,
		InitialLiquidity: p.InitialLiquidity,
	})
	return m, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// PlaceBet
// ──────────────────────────────────────────────────────────────────────────────

// BetResult is returned by PlaceBet.
type BetResult struct {
	Market *domain.Market `json:"market"`
	Trade  pricing.Trade  `json:"trade"`
}

// PlaceBet prices amount claims of one side, moves the cost from user to the
// vault, mints the claims to user and updates the pools.
func (s *MarketService) PlaceBet(ctx context.Context, user domain.Account, marketID uuid.UUID, amount uint64, buyYes bool) (*BetResult, error) {
	now := s.now()
	var (
		m     *domain.Market
		trade pricing.Trade
	)

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		if m, err = tx.Markets().GetForUpdate(ctx, marketID); err != nil {
			return err
		}
		if err = m.CheckBet(amount, now); err != nil {
			return err
		}
		if trade, err = pricing.Quote(m.YesPool, m.NoPool, amount, buyYes); err != nil {
			return fmt.Errorf("quote: %w", err)
		}
		first, err := tx.Markets().RecordBettor(ctx, m.ID, user)
		if err != nil {
			return fmt.Errorf("record bettor: %w", err)
		}
		k := pricing.Invariant(m.YesPool, m.NoPool)
		if err = m.ApplyBet(buyYes, amount, trade.Cost, first); err != nil {
			return err
		}
		if pricing.Invariant(m.YesPool, m.NoPool).Lt(k) {
			return fmt.Errorf("pool invariant decreased: %w", domain.ErrMathUnderflow)
		}
		if err = tx.Ledger().Transfer(ctx, s.cfg.SettlementMint, user, domain.VaultAccount(m.ID), trade.Cost); err != nil {
			return fmt.Errorf("pay cost: %w", err)
		}
		mint := domain.ClaimMint(m.ID, buyYes)
		if err = tx.Ledger().MintTo(ctx, mint, user, trade.Claims, domain.MarketAuthority(m.ID)); err != nil {
			return fmt.Errorf("mint claims: %w", err)
		}
		if err = tx.Markets().Update(ctx, m); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("market_service.PlaceBet: %w", err)
	}

	s.events.Publish(ctx, domain.BetPlaced{
		Market:   m.ID,
		User:     user,
		BetOnYes: buyYes,
		Amount:   amount,
		Cost:     trade.Cost,
		YesPool:  m.YesPool,
		NoPool:   m.NoPool,
	})
	return &BetResult{Market: m, Trade: trade}, nil
}

// BetQuote previews a trade and the YES price it would leave behind.
type BetQuote struct {
	pricing.Trade
	AveragePrice  decimal.Decimal `json:"average_price"`
	YesPriceAfter decimal.Decimal `json:"yes_price_after"`
}

// QuoteBet previews PlaceBet without moving funds.
func (s *MarketService) QuoteBet(ctx context.Context, marketID uuid.UUID, amount uint64, buyYes bool) (*BetQuote, error) {
	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if err := m.CheckBet(amount, s.now()); err != nil {
		return nil, err
	}
	trade, err := pricing.Quote(m.YesPool, m.NoPool, amount, buyYes)
	if err != nil {
		return nil, err
	}
	// m is a private copy; applying the trade only moves its pools.
	if err := m.ApplyBet(buyYes, amount, trade.Cost, false); err != nil {
		return nil, err
	}
	return &BetQuote{
		Trade:         trade,
		AveragePrice:  trade.AveragePrice(),
		YesPriceAfter: pricing.ImpliedYesPrice(m.YesPool, m.NoPool),
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// GetMarket returns one market.
func (s *MarketService) GetMarket(ctx context.Context, id uuid.UUID) (*domain.Market, error) {
	return s.store.GetMarket(ctx, id)
}

// ListMarkets returns a page of markets and the total matching count.
func (s *MarketService) ListMarkets(ctx context.Context, f repository.MarketFilter) ([]*domain.Market, int, error) {
	return s.store.ListMarkets(ctx, f)
}

// Summaries converts markets to their read model as of now.
func (s *MarketService) Summaries(markets []*domain.Market) []domain.MarketSummary {
	now := s.now()
	out := make([]domain.MarketSummary, 0, len(markets))
	for _, m := range markets {
		out = append(out, m.ToSummary(now))
	}
	return out
}

// Summary converts one market to its read model as of now.
func (s *MarketService) Summary(m *domain.Market) domain.MarketSummary {
	return m.ToSummary(s.now())
}
