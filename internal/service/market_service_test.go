package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/pricing"
	"github.com/oraculo/protocol/internal/repository"
)

func TestCreateMarket_LocksLiquidity(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	m := h.createMarket()

	if m.YesPool != 5_000_000 || m.NoPool != 5_000_000 {
		t.Errorf("pools = %d/%d, want 5M/5M", m.YesPool, m.NoPool)
	}
	if got := h.balance("usdc", domain.VaultAccount(m.ID)); got != 10_000_000 {
		t.Errorf("vault = %d, want 10M", got)
	}
	if got := h.balance("usdc", "alice"); got != 0 {
		t.Errorf("creator balance = %d, want 0", got)
	}
	if got := h.balance(domain.YesMint(m.ID), "alice"); got != 0 {
		t.Errorf("yes mint not registered or non-empty: %d", got)
	}
	if _, ok := h.events.last().(domain.MarketCreated); !ok {
		t.Errorf("last event = %T, want MarketCreated", h.events.last())
	}
}

func TestCreateMarket_Rejections(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	h.fund("usdc", "alice", 50_000_000)

	tests := []struct {
		name    string
		params  domain.CreateMarketParams
		wantErr error
	}{
		{"Below Min Liquidity", domain.CreateMarketParams{Question: "q", EndTime: t0.Add(time.Hour), InitialLiquidity: 9_999_999}, domain.ErrInsufficientLiquidity},
		{"End In Past", domain.CreateMarketParams{Question: "q", EndTime: t0, InitialLiquidity: 10_000_000}, domain.ErrInvalidEndTime},
		{"End Too Far", domain.CreateMarketParams{Question: "q", EndTime: t0.Add(366 * 24 * time.Hour), InitialLiquidity: 10_000_000}, domain.ErrEndTimeTooFar},
		{"More Than Balance", domain.CreateMarketParams{Question: "q", EndTime: t0.Add(time.Hour), InitialLiquidity: 60_000_000}, domain.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.markets.CreateMarket(h.ctx, "alice", tt.params); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if got := h.balance("usdc", "alice"); got != 50_000_000 {
		t.Errorf("balance after failed creates = %d, want unchanged 50M", got)
	}
	_, total, _ := h.markets.ListMarkets(h.ctx, repository.MarketFilter{})
	if total != 0 {
		t.Errorf("markets persisted after failures: %d", total)
	}
}

func TestCreateMarket_SameSecondCollides(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	h.createMarket()
	h.fund("usdc", "alice", 10_000_000)
	_, err := h.markets.CreateMarket(h.ctx, "alice", domain.CreateMarketParams{
		Question: "again", EndTime: t0.Add(time.Hour), InitialLiquidity: 10_000_000,
	})
	if !errors.Is(err, domain.ErrMarketExists) {
		t.Fatalf("err = %v, want ErrMarketExists", err)
	}
	if got := h.balance("usdc", "alice"); got != 10_000_000 {
		t.Errorf("liquidity moved despite collision: %d", got)
	}
}

func TestPlaceBet_MovesFundsAndPools(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	m := h.createMarket()
	h.fund("usdc", "bob", 5_000_000)
	h.now = t0.Add(time.Hour)

	res, err := h.markets.PlaceBet(h.ctx, "bob", m.ID, 1_000_000, true)
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	// k = 25e12, new yes 6M, new no floor(25e12/6e6) = 4_166_666.
	if res.Trade.Cost != 833_334 || res.Trade.Claims != 1_000_000 {
		t.Fatalf("trade = %+v", res.Trade)
	}

	got := h.market(m.ID)
	if got.YesPool != 6_000_000 || got.NoPool != 5_000_000 {
		t.Errorf("pools = %d/%d, want 6M/5M", got.YesPool, got.NoPool)
	}
	if got.Volume != 833_334 || got.TotalLiquidity != 10_833_334 || got.UniqueBettors != 1 {
		t.Errorf("market totals = %+v", got)
	}
	if !got.YesPrice().GreaterThan(m.YesPrice()) {
		t.Errorf("yes price did not rise: %s -> %s", m.YesPrice(), got.YesPrice())
	}
	if b := h.balance("usdc", "bob"); b != 4_166_666 {
		t.Errorf("bob usdc = %d", b)
	}
	if b := h.balance(domain.YesMint(m.ID), "bob"); b != 1_000_000 {
		t.Errorf("bob yes claims = %d", b)
	}
	if v := h.balance("usdc", domain.VaultAccount(m.ID)); v != got.TotalLiquidity {
		t.Errorf("vault %d != total liquidity %d", v, got.TotalLiquidity)
	}

	// A second bet by the same user does not count as a new bettor.
	if _, err := h.markets.PlaceBet(h.ctx, "bob", m.ID, 1_000_000, false); err != nil {
		t.Fatal(err)
	}
	if got := h.market(m.ID); got.UniqueBettors != 1 {
		t.Errorf("UniqueBettors = %d, want 1", got.UniqueBettors)
	}
}

func TestPlaceBet_Rejections(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	m := h.createMarket()
	h.fund("usdc", "bob", 5_000_000)

	if _, err := h.markets.PlaceBet(h.ctx, "bob", m.ID, 999_999, true); !errors.Is(err, domain.ErrBetTooSmall) {
		t.Errorf("small bet: err = %v, want ErrBetTooSmall", err)
	}
	if _, err := h.markets.PlaceBet(h.ctx, "carol", m.ID, 1_000_000, true); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("unfunded bet: err = %v, want ErrInsufficientBalance", err)
	}
	if got := h.market(m.ID); got.YesPool != 5_000_000 || got.UniqueBettors != 0 {
		t.Errorf("failed bets changed the market: %+v", got)
	}
	if b := h.balance(domain.YesMint(m.ID), "carol"); b != 0 {
		t.Errorf("claims minted on failed bet: %d", b)
	}

	h.now = m.EndTime
	if _, err := h.markets.PlaceBet(h.ctx, "bob", m.ID, 1_000_000, true); !errors.Is(err, domain.ErrMarketEnded) {
		t.Errorf("at end: err = %v, want ErrMarketEnded", err)
	}
	if _, err := h.markets.PlaceBet(h.ctx, "bob", domain.ProposalKey(m.ID, "x"), 1_000_000, true); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("unknown market: err = %v", err)
	}
}

func TestQuoteBet_MatchesPlaceBet(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	m := h.createMarket()
	h.fund("usdc", "bob", 5_000_000)

	q, err := h.markets.QuoteBet(h.ctx, m.ID, 2_000_000, false)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := pricing.Quote(5_000_000, 5_000_000, 2_000_000, false)
	if q.Trade != want {
		t.Errorf("quote = %+v, want %+v", q.Trade, want)
	}
	if !q.AveragePrice.Equal(want.AveragePrice()) {
		t.Errorf("average price = %s, want %s", q.AveragePrice, want.AveragePrice())
	}
	if want := pricing.ImpliedYesPrice(5_000_000, 7_000_000); !q.YesPriceAfter.Equal(want) {
		t.Errorf("yes price after = %s, want %s", q.YesPriceAfter, want)
	}
	res, err := h.markets.PlaceBet(h.ctx, "bob", m.ID, 2_000_000, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Trade != q.Trade {
		t.Errorf("placed %+v, quoted %+v", res.Trade, q.Trade)
	}
	if got := h.market(m.ID).YesPrice(); !got.Equal(q.YesPriceAfter) {
		t.Errorf("yes price %s, quoted %s", got, q.YesPriceAfter)
	}
}
