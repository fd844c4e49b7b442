package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMarket(t *testing.T, creator domain.Account, at time.Time) *domain.Market {
	t.Helper()
	m, err := domain.NewMarket(creator, domain.CreateMarketParams{
		Question:         "q",
		Category:         domain.CategorySports,
		EndTime:          at.Add(24 * time.Hour),
		InitialLiquidity: 10_000_000,
	}, 0, at)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := repository.NewMemoryStore()
	m := newMarket(t, "alice", t0)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Markets().Insert(ctx, m); err != nil {
			return err
		}
		if err := tx.Ledger().CreateMint(ctx, "usdc", "authority"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := s.GetMarket(ctx, m.ID); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("market visible after rollback: %v", err)
	}
	if _, err := s.BalanceOf(ctx, "usdc", "alice"); !errors.Is(err, domain.ErrMintNotFound) {
		t.Errorf("mint visible after rollback: %v", err)
	}
}

func TestMemoryStore_CommitAndUniqueness(t *testing.T) {
	ctx := context.Background()
	s := repository.NewMemoryStore()
	m := newMarket(t, "alice", t0)

	insert := func() error {
		return s.InTx(ctx, func(tx repository.Tx) error { return tx.Markets().Insert(ctx, m) })
	}
	if err := insert(); err != nil {
		t.Fatal(err)
	}
	if err := insert(); !errors.Is(err, domain.ErrMarketExists) {
		t.Errorf("duplicate insert: err = %v, want ErrMarketExists", err)
	}

	got, err := s.GetMarket(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.YesPool = 1 // callers get copies
	again, _ := s.GetMarket(ctx, m.ID)
	if again.YesPool != m.YesPool {
		t.Error("mutating a read result changed the stored market")
	}
}

func TestMemoryStore_Votes(t *testing.T) {
	ctx := context.Background()
	s := repository.NewMemoryStore()
	pid := uuid.New()

	vote := &domain.VoteRecord{ProposalID: pid, Voter: "bob", Weight: 5, Support: true, VotedAt: t0}
	err := s.InTx(ctx, func(tx repository.Tx) error { return tx.Votes().Insert(ctx, vote) })
	if err != nil {
		t.Fatal(err)
	}
	err = s.InTx(ctx, func(tx repository.Tx) error { return tx.Votes().Insert(ctx, vote) })
	if !errors.Is(err, domain.ErrAlreadyVoted) {
		t.Errorf("second vote: err = %v, want ErrAlreadyVoted", err)
	}
	if _, err := s.GetVote(ctx, pid, "carol"); !errors.Is(err, domain.ErrVoteNotFound) {
		t.Errorf("missing vote: err = %v", err)
	}
}

func TestMemoryStore_RecordBettor(t *testing.T) {
	ctx := context.Background()
	s := repository.NewMemoryStore()
	id := uuid.New()

	var firsts []bool
	for _, who := range []domain.Account{"a", "b", "a"} {
		err := s.InTx(ctx, func(tx repository.Tx) error {
			first, err := tx.Markets().RecordBettor(ctx, id, who)
			firsts = append(firsts, first)
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if want := []bool{true, true, false}; firsts[0] != want[0] || firsts[1] != want[1] || firsts[2] != want[2] {
		t.Errorf("first flags = %v, want %v", firsts, want)
	}
}

func TestMemoryStore_ListMarketsAndStats(t *testing.T) {
	ctx := context.Background()
	s := repository.NewMemoryStore()

	for i := 0; i < 5; i++ {
		m := newMarket(t, "alice", t0.Add(time.Duration(i)*time.Minute))
		m.Volume = 100
		if i == 0 {
			m.Category = domain.CategoryCrypto
			_ = m.Resolve(true, t0)
		}
		if err := s.InTx(ctx, func(tx repository.Tx) error { return tx.Markets().Insert(ctx, m) }); err != nil {
			t.Fatal(err)
		}
	}

	page, total, err := s.ListMarkets(ctx, repository.MarketFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("total=%d len=%d, want 5/2", total, len(page))
	}
	if !page[0].CreatedAt.After(page[1].CreatedAt) {
		t.Error("markets not ordered newest first")
	}

	_, total, _ = s.ListMarkets(ctx, repository.MarketFilter{Status: domain.StatusResolved})
	if total != 1 {
		t.Errorf("resolved total = %d, want 1", total)
	}
	_, total, _ = s.ListMarkets(ctx, repository.MarketFilter{Category: domain.CategorySports})
	if total != 4 {
		t.Errorf("sports total = %d, want 4", total)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalMarkets != 5 || st.ActiveMarkets != 4 || st.ResolvedMarkets != 1 || st.TotalVolume.IntPart() != 500 {
		t.Errorf("stats = %+v", st)
	}
}

func TestMemoryStore_ConcurrentTransactions(t *testing.T) {
	ctx := context.Background()
	s := repository.NewMemoryStore()
	if err := s.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Ledger().CreateMint(ctx, "usdc", "authority"); err != nil {
			return err
		}
		return tx.Ledger().MintTo(ctx, "usdc", "pool", 1_000, "authority")
	}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InTx(ctx, func(tx repository.Tx) error {
				return tx.Ledger().Transfer(ctx, "usdc", "pool", "sink", 10)
			})
		}()
	}
	wg.Wait()

	pool, _ := s.BalanceOf(ctx, "usdc", "pool")
	sink, _ := s.BalanceOf(ctx, "usdc", "sink")
	if pool != 500 || sink != 500 {
		t.Errorf("pool/sink = %d/%d, want 500/500", pool, sink)
	}
}
