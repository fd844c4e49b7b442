package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/repository"
	"github.com/oraculo/protocol/internal/service"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recorder keeps published events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(_ context.Context, e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) last() domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	cfg    domain.ProtocolConfig
	store  *repository.MemoryStore
	events *recorder
	now    time.Time

	markets    *service.MarketService
	governance *service.GovernanceService
	settlement *service.SettlementService
	admin      *service.AdminService
}

func newHarness(t *testing.T, cfg domain.ProtocolConfig) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		cfg:    cfg,
		store:  repository.NewMemoryStore(),
		events: &recorder{},
		now:    t0,
	}
	clock := func() time.Time { return h.now }

	h.markets = service.NewMarketService(h.store, cfg, h.events, log)
	h.markets.SetClock(clock)
	h.governance = service.NewGovernanceService(h.store, cfg, h.events, log)
	h.governance.SetClock(clock)
	h.settlement = service.NewSettlementService(h.store, cfg, h.events, log)
	h.admin = service.NewAdminService(h.store, cfg, h.events, log)

	if err := h.admin.Bootstrap(h.ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return h
}

func (h *harness) fund(mint domain.Mint, to domain.Account, amount uint64) {
	h.t.Helper()
	if err := h.admin.Mint(h.ctx, mint, to, amount); err != nil {
		h.t.Fatalf("Mint %s to %s: %v", mint, to, err)
	}
}

func (h *harness) balance(mint domain.Mint, owner domain.Account) uint64 {
	h.t.Helper()
	amt, err := h.store.BalanceOf(h.ctx, mint, owner)
	if err != nil {
		h.t.Fatalf("BalanceOf %s/%s: %v", mint, owner, err)
	}
	return amt
}

func (h *harness) market(id uuid.UUID) *domain.Market {
	h.t.Helper()
	m, err := h.store.GetMarket(h.ctx, id)
	if err != nil {
		h.t.Fatal(err)
	}
	return m
}

// createMarket opens a 10M market for alice ending a day after t0.
func (h *harness) createMarket() *domain.Market {
	h.t.Helper()
	h.fund(h.cfg.SettlementMint, "alice", 10_000_000)
	m, err := h.markets.CreateMarket(h.ctx, "alice", domain.CreateMarketParams{
		Question:         "Will BTC close above 100k on Friday?",
		Category:         domain.CategoryCrypto,
		ResolutionSource: "exchange close",
		EndTime:          t0.Add(24 * time.Hour),
		InitialLiquidity: 10_000_000,
	})
	if err != nil {
		h.t.Fatalf("CreateMarket: %v", err)
	}
	return m
}

// propose moves past the market end and opens a proposal.
func (h *harness) propose(m *domain.Market, who domain.Account, outcome bool) *domain.Proposal {
	h.t.Helper()
	if h.now.Before(m.EndTime.Add(time.Minute)) {
		h.now = m.EndTime.Add(time.Minute)
	}
	h.fund(h.cfg.GovernanceMint, who, h.cfg.ProposalStake)
	p, err := h.governance.ProposeResolution(h.ctx, who, m.ID, outcome, "closing price")
	if err != nil {
		h.t.Fatalf("ProposeResolution: %v", err)
	}
	return p
}

func (h *harness) vote(p *domain.Proposal, who domain.Account, weight uint64, support bool) {
	h.t.Helper()
	h.fund(h.cfg.GovernanceMint, who, weight)
	if _, err := h.governance.Vote(h.ctx, who, p.ID, weight, support); err != nil {
		h.t.Fatalf("Vote by %s: %v", who, err)
	}
}
