package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/ledger"
)

// MemoryStore is an in-process Store. Transactions run one at a time against
// a private copy of the state, which replaces the live state only when the
// callback succeeds.
type MemoryStore struct {
	mu    sync.RWMutex // guards state swaps; readers take RLock
	write sync.Mutex   // serialises transactions
	state *memState
}

type voteKey struct {
	proposal uuid.UUID
	voter    domain.Account
}

type memState struct {
	markets   map[uuid.UUID]domain.Market
	proposals map[uuid.UUID]domain.Proposal
	votes     map[voteKey]domain.VoteRecord
	bettors   map[uuid.UUID]map[domain.Account]struct{}
	book      *ledger.Book
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		markets:   make(map[uuid.UUID]domain.Market),
		proposals: make(map[uuid.UUID]domain.Proposal),
		votes:     make(map[voteKey]domain.VoteRecord),
		bettors:   make(map[uuid.UUID]map[domain.Account]struct{}),
		book:      ledger.NewBook(),
	}}
}

var _ Store = (*MemoryStore)(nil)

func (s *memState) clone() *memState {
	c := &memState{
		markets:   make(map[uuid.UUID]domain.Market, len(s.markets)),
		proposals: make(map[uuid.UUID]domain.Proposal, len(s.proposals)),
		votes:     make(map[voteKey]domain.VoteRecord, len(s.votes)),
		bettors:   make(map[uuid.UUID]map[domain.Account]struct{}, len(s.bettors)),
		book:      s.book.Clone(),
	}
	for k, v := range s.markets {
		c.markets[k] = v
	}
	for k, v := range s.proposals {
		c.proposals[k] = v
	}
	for k, v := range s.votes {
		c.votes[k] = v
	}
	for k, set := range s.bettors {
		cp := make(map[domain.Account]struct{}, len(set))
		for a := range set {
			cp[a] = struct{}{}
		}
		c.bettors[k] = cp
	}
	return c
}

// InTx implements Store.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.write.Lock()
	defer s.write.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	if err := fn(&memTx{st: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Transaction view
// ──────────────────────────────────────────────────────────────────────────────

type memTx struct{ st *memState }

func (t *memTx) Markets() MarketTx     { return memMarkets{t.st} }
func (t *memTx) Proposals() ProposalTx { return memProposals{t.st} }
func (t *memTx) Votes() VoteTx         { return memVotes{t.st} }
func (t *memTx) Ledger() ledger.Ledger { return t.st.book }

type memMarkets struct{ st *memState }

func (r memMarkets) Insert(_ context.Context, m *domain.Market) error {
	if _, ok := r.st.markets[m.ID]; ok {
		return domain.ErrMarketExists
	}
	r.st.markets[m.ID] = *m
	return nil
}

func (r memMarkets) GetForUpdate(_ context.Context, id uuid.UUID) (*domain.Market, error) {
	m, ok := r.st.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return &m, nil
}

func (r memMarkets) Update(_ context.Context, m *domain.Market) error {
	if _, ok := r.st.markets[m.ID]; !ok {
		return domain.ErrMarketNotFound
	}
	r.st.markets[m.ID] = *m
	return nil
}

func (r memMarkets) RecordBettor(_ context.Context, marketID uuid.UUID, user domain.Account) (bool, error) {
	set, ok := r.st.bettors[marketID]
	if !ok {
		set = make(map[domain.Account]struct{})
		r.st.bettors[marketID] = set
	}
	if _, seen := set[user]; seen {
		return false, nil
	}
	set[user] = struct{}{}
	return true, nil
}

type memProposals struct{ st *memState }

func (r memProposals) Insert(_ context.Context, p *domain.Proposal) error {
	if _, ok := r.st.proposals[p.ID]; ok {
		return domain.ErrProposalExists
	}
	r.st.proposals[p.ID] = *p
	return nil
}

func (r memProposals) GetForUpdate(_ context.Context, id uuid.UUID) (*domain.Proposal, error) {
	p, ok := r.st.proposals[id]
	if !ok {
		return nil, domain.ErrProposalNotFound
	}
	return &p, nil
}

func (r memProposals) Update(_ context.Context, p *domain.Proposal) error {
	if _, ok := r.st.proposals[p.ID]; !ok {
		return domain.ErrProposalNotFound
	}
	r.st.proposals[p.ID] = *p
	return nil
}

func (r memProposals) ListActiveForUpdate(_ context.Context, marketID uuid.UUID) ([]*domain.Proposal, error) {
	var out []*domain.Proposal
	for _, p := range r.st.proposals {
		if p.MarketID == marketID && p.IsActive() {
			p := p
			out = append(out, &p)
		}
	}
	sortProposals(out)
	return out, nil
}

type memVotes struct{ st *memState }

func (r memVotes) Insert(_ context.Context, v *domain.VoteRecord) error {
	k := voteKey{v.ProposalID, v.Voter}
	if _, ok := r.st.votes[k]; ok {
		return domain.ErrAlreadyVoted
	}
	r.st.votes[k] = *v
	return nil
}

func (r memVotes) GetForUpdate(_ context.Context, proposalID uuid.UUID, voter domain.Account) (*domain.VoteRecord, error) {
	v, ok := r.st.votes[voteKey{proposalID, voter}]
	if !ok {
		return nil, domain.ErrVoteNotFound
	}
	return &v, nil
}

func (r memVotes) Update(_ context.Context, v *domain.VoteRecord) error {
	k := voteKey{v.ProposalID, v.Voter}
	if _, ok := r.st.votes[k]; !ok {
		return domain.ErrVoteNotFound
	}
	r.st.votes[k] = *v
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reader
// ──────────────────────────────────────────────────────────────────────────────

func (s *MemoryStore) read() *memState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *MemoryStore) GetMarket(_ context.Context, id uuid.UUID) (*domain.Market, error) {
	m, ok := s.read().markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return &m, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context, f MarketFilter) ([]*domain.Market, int, error) {
	var all []*domain.Market
	for _, m := range s.read().markets {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.Category != "" && m.Category != f.Category {
			continue
		}
		m := m
		all = append(all, &m)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	total := len(all)
	return page(all, f.Offset, clampLimit(f.Limit)), total, nil
}

func (s *MemoryStore) GetProposal(_ context.Context, id uuid.UUID) (*domain.Proposal, error) {
	p, ok := s.read().proposals[id]
	if !ok {
		return nil, domain.ErrProposalNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListProposals(_ context.Context, marketID uuid.UUID) ([]*domain.Proposal, error) {
	var out []*domain.Proposal
	for _, p := range s.read().proposals {
		if p.MarketID == marketID {
			p := p
			out = append(out, &p)
		}
	}
	sortProposals(out)
	return out, nil
}

func (s *MemoryStore) ListDueProposals(_ context.Context, now time.Time, limit int) ([]*domain.Proposal, error) {
	var out []*domain.Proposal
	for _, p := range s.read().proposals {
		if p.IsActive() && !p.VotingEndsAt.After(now) {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VotingEndsAt.Before(out[j].VotingEndsAt) })
	return page(out, 0, clampLimit(limit)), nil
}

func (s *MemoryStore) ListUnsettledProposals(_ context.Context, limit int) ([]*domain.Proposal, error) {
	var out []*domain.Proposal
	for _, p := range s.read().proposals {
		if !p.IsActive() && !p.StakeSettled {
			p := p
			out = append(out, &p)
		}
	}
	sortProposals(out)
	return page(out, 0, clampLimit(limit)), nil
}

func (s *MemoryStore) GetVote(_ context.Context, proposalID uuid.UUID, voter domain.Account) (*domain.VoteRecord, error) {
	v, ok := s.read().votes[voteKey{proposalID, voter}]
	if !ok {
		return nil, domain.ErrVoteNotFound
	}
	return &v, nil
}

func (s *MemoryStore) BalanceOf(ctx context.Context, mint domain.Mint, owner domain.Account) (uint64, error) {
	return s.read().book.BalanceOf(ctx, mint, owner)
}

func (s *MemoryStore) Holdings(_ context.Context, owner domain.Account) ([]ledger.Balance, error) {
	return s.read().book.Holdings(owner), nil
}

func (s *MemoryStore) Supply(_ context.Context, mint domain.Mint) (uint64, error) {
	return s.read().book.Supply(mint)
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	st := s.read()
	var out Stats
	for _, m := range st.markets {
		out.TotalMarkets++
		switch m.Status {
		case domain.StatusActive:
			out.ActiveMarkets++
		case domain.StatusResolved:
			out.ResolvedMarkets++
		}
		out.TotalVolume = out.TotalVolume.Add(domain.Units(m.Volume))
	}
	for _, p := range st.proposals {
		if p.IsActive() {
			out.ActiveProposals++
		}
	}
	return out, nil
}

func sortProposals(ps []*domain.Proposal) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].ProposedAt.Equal(ps[j].ProposedAt) {
			return ps[i].ProposedAt.Before(ps[j].ProposedAt)
		}
		return ps[i].ID.String() < ps[j].ID.String()
	})
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
