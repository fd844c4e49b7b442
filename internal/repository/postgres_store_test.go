package repository_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/internal/config"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/repository"
	"github.com/oraculo/protocol/internal/service"
)

// pgEnv runs the services against a PostgreSQL store. Every test gets its own
// mints and account names, so runs share a database without colliding.
type pgEnv struct {
	t     *testing.T
	ctx   context.Context
	cfg   domain.ProtocolConfig
	store repository.Store
	now   time.Time
	tag   string

	markets    *service.MarketService
	governance *service.GovernanceService
	settlement *service.SettlementService
	admin      *service.AdminService
}

// newPGEnv connects to TEST_DATABASE_URL or skips.
func newPGEnv(t *testing.T) *pgEnv {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, closeFn, err := repository.Open(ctx, config.DBConfig{
		Driver:          "postgres",
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Minute,
		AutoMigrate:     true,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = closeFn() })

	// Migrate is run again on every start in production.
	if err := store.(*repository.PostgresStore).Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	tag := uuid.NewString()[:8]
	cfg := domain.DefaultProtocolConfig()
	cfg.GovernanceMint = domain.Mint("gov-" + tag)
	cfg.SettlementMint = domain.Mint("usdc-" + tag)
	cfg.Treasury = domain.Account("treasury-" + tag)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &pgEnv{
		t:     t,
		ctx:   ctx,
		cfg:   cfg,
		store: store,
		now:   time.Now().UTC().Truncate(time.Second),
		tag:   tag,
	}
	clock := func() time.Time { return e.now }

	e.markets = service.NewMarketService(store, cfg, nil, log)
	e.markets.SetClock(clock)
	e.governance = service.NewGovernanceService(store, cfg, nil, log)
	e.governance.SetClock(clock)
	e.settlement = service.NewSettlementService(store, cfg, nil, log)
	e.admin = service.NewAdminService(store, cfg, nil, log)
	if err := e.admin.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if err := e.admin.Bootstrap(ctx); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	return e
}

func (e *pgEnv) acct(name string) domain.Account {
	return domain.Account(name + "-" + e.tag)
}

func (e *pgEnv) fund(mint domain.Mint, to domain.Account, amount uint64) {
	e.t.Helper()
	if err := e.admin.Mint(e.ctx, mint, to, amount); err != nil {
		e.t.Fatalf("Mint %s to %s: %v", mint, to, err)
	}
}

func (e *pgEnv) balance(mint domain.Mint, owner domain.Account) uint64 {
	e.t.Helper()
	amt, err := e.store.BalanceOf(e.ctx, mint, owner)
	if err != nil {
		e.t.Fatalf("BalanceOf %s/%s: %v", mint, owner, err)
	}
	return amt
}

func (e *pgEnv) createMarket(creator domain.Account) *domain.Market {
	e.t.Helper()
	e.fund(e.cfg.SettlementMint, creator, 10_000_000)
	m, err := e.markets.CreateMarket(e.ctx, creator, domain.CreateMarketParams{
		Question:         "Will the integration suite pass?",
		Category:         domain.CategoryTechnology,
		EndTime:          e.now.Add(time.Hour),
		InitialLiquidity: 10_000_000,
	})
	if err != nil {
		e.t.Fatalf("CreateMarket: %v", err)
	}
	return m
}

func (e *pgEnv) propose(m *domain.Market, who domain.Account, outcome bool) *domain.Proposal {
	e.t.Helper()
	e.fund(e.cfg.GovernanceMint, who, e.cfg.ProposalStake)
	p, err := e.governance.ProposeResolution(e.ctx, who, m.ID, outcome, "settled off-chain")
	if err != nil {
		e.t.Fatalf("ProposeResolution: %v", err)
	}
	return p
}

func (e *pgEnv) vote(p *domain.Proposal, who domain.Account, weight uint64, support bool) {
	e.t.Helper()
	e.fund(e.cfg.GovernanceMint, who, weight)
	if _, err := e.governance.Vote(e.ctx, who, p.ID, weight, support); err != nil {
		e.t.Fatalf("Vote by %s: %v", who, err)
	}
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	e := newPGEnv(t)
	alice, bob, carol, dave, erin := e.acct("alice"), e.acct("bob"), e.acct("carol"), e.acct("dave"), e.acct("erin")
	usdc, gov := e.cfg.SettlementMint, e.cfg.GovernanceMint

	m := e.createMarket(alice)
	if _, err := e.markets.CreateMarket(e.ctx, alice, domain.CreateMarketParams{
		Question: "same second", EndTime: e.now.Add(time.Hour), InitialLiquidity: 10_000_000,
	}); !errors.Is(err, domain.ErrMarketExists) {
		t.Errorf("duplicate market: err = %v, want ErrMarketExists", err)
	}

	e.fund(usdc, bob, 5_000_000)
	e.now = e.now.Add(time.Minute)
	res, err := e.markets.PlaceBet(e.ctx, bob, m.ID, 1_000_000, true)
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if res.Trade.Cost != 833_334 {
		t.Errorf("cost = %d, want 833334", res.Trade.Cost)
	}
	if _, err := e.markets.PlaceBet(e.ctx, bob, m.ID, 1_000_000, false); err != nil {
		t.Fatalf("second PlaceBet: %v", err)
	}
	got, err := e.store.GetMarket(e.ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UniqueBettors != 1 {
		t.Errorf("unique bettors = %d, want 1", got.UniqueBettors)
	}
	if vault := e.balance(usdc, domain.VaultAccount(m.ID)); vault != got.TotalLiquidity {
		t.Errorf("vault %d != total liquidity %d", vault, got.TotalLiquidity)
	}

	e.now = m.EndTime.Add(time.Minute)
	p := e.propose(m, carol, true)
	if _, err := e.governance.ProposeResolution(e.ctx, carol, m.ID, false, ""); !errors.Is(err, domain.ErrProposalExists) {
		t.Errorf("duplicate proposal: err = %v, want ErrProposalExists", err)
	}
	if bal := e.balance(gov, domain.StakeAccount(p.ID)); bal != e.cfg.ProposalStake {
		t.Errorf("stake escrow = %d after rejected duplicate, want %d", bal, e.cfg.ProposalStake)
	}

	e.vote(p, dave, 60, true)
	e.fund(gov, dave, 60)
	if _, err := e.governance.Vote(e.ctx, dave, p.ID, 60, true); !errors.Is(err, domain.ErrAlreadyVoted) {
		t.Errorf("double vote: err = %v, want ErrAlreadyVoted", err)
	}
	e.vote(p, erin, 40, false)

	e.now = p.VotingEndsAt
	resolved, err := e.governance.ExecuteResolution(e.ctx, p.ID)
	if err != nil {
		t.Fatalf("ExecuteResolution: %v", err)
	}
	if !resolved.Outcome || resolved.TotalVotes != 100 {
		t.Errorf("resolved = %+v", resolved)
	}
	if _, err := e.governance.ExecuteResolution(e.ctx, p.ID); !errors.Is(err, domain.ErrProposalNotActive) {
		t.Errorf("re-execute: err = %v, want ErrProposalNotActive", err)
	}

	vaultBefore := e.balance(usdc, domain.VaultAccount(m.ID))
	if err := e.settlement.ClaimWinnings(e.ctx, bob, m.ID, 1_000_000); err != nil {
		t.Fatalf("ClaimWinnings: %v", err)
	}
	if vault := e.balance(usdc, domain.VaultAccount(m.ID)); vaultBefore-vault != 1_000_000 {
		t.Errorf("vault moved by %d, want 1000000", vaultBefore-vault)
	}
	if claims := e.balance(domain.YesMint(m.ID), bob); claims != 0 {
		t.Errorf("bob still holds %d YES claims", claims)
	}

	if _, err := e.governance.SettleProposalStake(e.ctx, p.ID); err != nil {
		t.Fatalf("SettleProposalStake: %v", err)
	}
	if _, err := e.governance.ReclaimVote(e.ctx, erin, p.ID); err != nil {
		t.Fatalf("ReclaimVote: %v", err)
	}
	if e.balance(gov, carol) != e.cfg.ProposalStake || e.balance(gov, erin) != 40 {
		t.Errorf("carol=%d erin=%d after release", e.balance(gov, carol), e.balance(gov, erin))
	}

	holdings, err := e.store.Holdings(e.ctx, bob)
	if err != nil || len(holdings) == 0 {
		t.Errorf("holdings = %v, %v", holdings, err)
	}
}

func TestPostgresStore_LapsedProposal(t *testing.T) {
	e := newPGEnv(t)
	carol, dave := e.acct("carol"), e.acct("dave")
	gov := e.cfg.GovernanceMint

	m := e.createMarket(e.acct("alice"))
	e.now = m.EndTime.Add(time.Minute)
	p := e.propose(m, carol, true)
	e.vote(p, dave, 10, true)

	e.now = p.VotingEndsAt
	if _, err := e.governance.ExecuteResolution(e.ctx, p.ID); !errors.Is(err, domain.ErrQuorumNotReached) {
		t.Fatalf("execute: err = %v, want ErrQuorumNotReached", err)
	}
	if _, err := e.governance.ReclaimVote(e.ctx, dave, p.ID); err != nil {
		t.Fatalf("ReclaimVote: %v", err)
	}
	if _, err := e.governance.SettleProposalStake(e.ctx, p.ID); err != nil {
		t.Fatalf("SettleProposalStake: %v", err)
	}
	if e.balance(gov, dave) != 10 || e.balance(gov, carol) != e.cfg.ProposalStake {
		t.Errorf("dave=%d carol=%d", e.balance(gov, dave), e.balance(gov, carol))
	}
	got, err := e.store.GetProposal(e.ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.ProposalLapsed || !got.StakeSettled || got.ProposerCorrect != nil {
		t.Errorf("proposal = %+v", got)
	}
}

func TestPostgresStore_FullUint64Range(t *testing.T) {
	e := newPGEnv(t)
	whale, minnow := e.acct("whale"), e.acct("minnow")

	e.fund(e.cfg.GovernanceMint, whale, math.MaxUint64)
	if bal := e.balance(e.cfg.GovernanceMint, whale); bal != math.MaxUint64 {
		t.Errorf("balance = %d, want MaxUint64", bal)
	}
	if supply, err := e.store.Supply(e.ctx, e.cfg.GovernanceMint); err != nil || supply != math.MaxUint64 {
		t.Errorf("supply = %d, %v", supply, err)
	}
	if err := e.admin.Mint(e.ctx, e.cfg.GovernanceMint, whale, 1); !errors.Is(err, domain.ErrMathOverflow) {
		t.Errorf("overflowing mint: err = %v, want ErrMathOverflow", err)
	}

	e.fund(e.cfg.GovernanceMint, minnow, 1)
	if _, err := e.store.Supply(e.ctx, e.cfg.GovernanceMint); !errors.Is(err, domain.ErrMathOverflow) {
		t.Errorf("supply past uint64: err = %v, want ErrMathOverflow", err)
	}
	if _, err := e.store.Supply(e.ctx, domain.Mint("missing-"+e.tag)); !errors.Is(err, domain.ErrMintNotFound) {
		t.Errorf("unknown mint: err = %v, want ErrMintNotFound", err)
	}
}

func TestPostgresStore_ConcurrentBets(t *testing.T) {
	const workers = 10

	e := newPGEnv(t)
	m := e.createMarket(e.acct("alice"))
	for i := 0; i < workers; i++ {
		e.fund(e.cfg.SettlementMint, e.acct(fmt.Sprintf("bettor%d", i)), 5_000_000)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			user := e.acct(fmt.Sprintf("bettor%d", id))
			if _, err := e.markets.PlaceBet(e.ctx, user, m.ID, 1_000_000, id%2 == 0); err != nil {
				t.Errorf("bet %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := e.store.GetMarket(e.ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UniqueBettors != workers || got.YesPool != 10_000_000 || got.NoPool != 10_000_000 {
		t.Errorf("market = bettors %d pools %d/%d", got.UniqueBettors, got.YesPool, got.NoPool)
	}
	if vault := e.balance(e.cfg.SettlementMint, domain.VaultAccount(m.ID)); vault != got.TotalLiquidity {
		t.Errorf("vault %d != total liquidity %d", vault, got.TotalLiquidity)
	}
}

func TestPostgresStore_ConcurrentExecute(t *testing.T) {
	e := newPGEnv(t)
	m := e.createMarket(e.acct("alice"))
	e.now = m.EndTime.Add(time.Minute)
	yes := e.propose(m, e.acct("carol"), true)
	no := e.propose(m, e.acct("frank"), false)
	e.vote(yes, e.acct("dave"), 60, true)
	e.vote(no, e.acct("erin"), 60, true)
	e.now = no.VotingEndsAt

	var (
		wg   sync.WaitGroup
		wins int64
	)
	for _, p := range []*domain.Proposal{yes, no} {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := e.governance.ExecuteResolution(e.ctx, id)
			switch {
			case err == nil:
				atomic.AddInt64(&wins, 1)
			case errors.Is(err, domain.ErrProposalNotActive), errors.Is(err, domain.ErrMarketNotActive):
			default:
				t.Errorf("execute %s: %v", id, err)
			}
		}(p.ID)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}
