// Package ledger defines the token ledger the protocol moves funds through
// and an in-memory implementation of it.
package ledger

import (
	"context"

	"github.com/oraculo/protocol/internal/domain"
)

// Ledger moves fungible tokens between accounts. Implementations return
// domain.ErrInsufficientBalance, domain.ErrUnauthorized, domain.ErrMintNotFound
// and domain.ErrMintExists.
type Ledger interface {
	// CreateMint registers a token whose MintTo calls must name authority.
	CreateMint(ctx context.Context, mint domain.Mint, authority domain.Account) error
	Transfer(ctx context.Context, mint domain.Mint, from, to domain.Account, amount uint64) error
	MintTo(ctx context.Context, mint domain.Mint, to domain.Account, amount uint64, authority domain.Account) error
	// Burn destroys amount of from's tokens; authority must be the owner.
	Burn(ctx context.Context, mint domain.Mint, from domain.Account, amount uint64, authority domain.Account) error
	BalanceOf(ctx context.Context, mint domain.Mint, owner domain.Account) (uint64, error)
}

// Balance is one (mint, amount) entry of an owner's holdings.
type Balance struct {
	Mint   domain.Mint `json:"mint"   db:"mint"`
	Amount uint64      `json:"amount" db:"amount"`
}
