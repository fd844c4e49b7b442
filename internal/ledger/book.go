package ledger

import (
	"context"
	"sort"

	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/pkg/safe"
)

// Book is an in-memory Ledger. It is not safe for concurrent use; callers
// serialise access (the memory store clones it per transaction).
type Book struct {
	authorities map[domain.Mint]domain.Account
	balances    map[domain.Mint]map[domain.Account]uint64
}

// NewBook returns an empty Book.
func NewBook() *Book {
	return &Book{
		authorities: make(map[domain.Mint]domain.Account),
		balances:    make(map[domain.Mint]map[domain.Account]uint64),
	}
}

var _ Ledger = (*Book)(nil)

// Clone returns a deep copy of the book.
func (b *Book) Clone() *Book {
	c := NewBook()
	for mint, auth := range b.authorities {
		c.authorities[mint] = auth
	}
	for mint, owners := range b.balances {
		cp := make(map[domain.Account]uint64, len(owners))
		for owner, amt := range owners {
			cp[owner] = amt
		}
		c.balances[mint] = cp
	}
	return c
}

func (b *Book) CreateMint(_ context.Context, mint domain.Mint, authority domain.Account) error {
	if _, ok := b.authorities[mint]; ok {
		return domain.ErrMintExists
	}
	b.authorities[mint] = authority
	b.balances[mint] = make(map[domain.Account]uint64)
	return nil
}

func (b *Book) Transfer(_ context.Context, mint domain.Mint, from, to domain.Account, amount uint64) error {
	owners, ok := b.balances[mint]
	if !ok {
		return domain.ErrMintNotFound
	}
	if from == to {
		if owners[from] < amount {
			return domain.ErrInsufficientBalance
		}
		return nil
	}
	debited, err := safe.Sub(owners[from], amount)
	if err != nil {
		return domain.ErrInsufficientBalance
	}
	credited, err := safe.Add(owners[to], amount)
	if err != nil {
		return err
	}
	owners[from], owners[to] = debited, credited
	return nil
}

func (b *Book) MintTo(_ context.Context, mint domain.Mint, to domain.Account, amount uint64, authority domain.Account) error {
	auth, ok := b.authorities[mint]
	if !ok {
		return domain.ErrMintNotFound
	}
	if auth != authority {
		return domain.ErrUnauthorized
	}
	credited, err := safe.Add(b.balances[mint][to], amount)
	if err != nil {
		return err
	}
	b.balances[mint][to] = credited
	return nil
}

func (b *Book) Burn(_ context.Context, mint domain.Mint, from domain.Account, amount uint64, authority domain.Account) error {
	owners, ok := b.balances[mint]
	if !ok {
		return domain.ErrMintNotFound
	}
	if authority != from {
		return domain.ErrUnauthorized
	}
	debited, err := safe.Sub(owners[from], amount)
	if err != nil {
		return domain.ErrInsufficientBalance
	}
	owners[from] = debited
	return nil
}

func (b *Book) BalanceOf(_ context.Context, mint domain.Mint, owner domain.Account) (uint64, error) {
	owners, ok := b.balances[mint]
	if !ok {
		return 0, domain.ErrMintNotFound
	}
	return owners[owner], nil
}

// Holdings returns owner's non-zero balances sorted by mint.
func (b *Book) Holdings(owner domain.Account) []Balance {
	var out []Balance
	for mint, owners := range b.balances {
		if amt := owners[owner]; amt > 0 {
			out = append(out, Balance{Mint: mint, Amount: amt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mint < out[j].Mint })
	return out
}

// Supply returns the sum of all balances of mint.
func (b *Book) Supply(mint domain.Mint) (uint64, error) {
	owners, ok := b.balances[mint]
	if !ok {
		return 0, domain.ErrMintNotFound
	}
	var total uint64
	for _, amt := range owners {
		var err error
		if total, err = safe.Add(total, amt); err != nil {
			return 0, err
		}
	}
	return total, nil
}
