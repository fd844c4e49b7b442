// Package pricing implements the constant-product bonding curve that prices
// YES/NO claim purchases against a market's reserves.
package pricing

import (
	"github.com/holiman/uint256"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/shopspring/decimal"
)

// Trade is the result of pricing a purchase.
type Trade struct {
	// Cost is the settlement currency the buyer pays into the vault.
	Cost uint64 `json:"cost"`
	// Claims is the number of claim tokens minted to the buyer.
	Claims uint64 `json:"claims"`
}

// Quote prices buying amount units of one side of a pool pair:
//
//	k       = yes * no
//	newIn   = in + amount
//	newOut  = k / newIn   (truncating)
//	cost    = out - newOut
//
// where "in" is the bought side. All intermediate values are computed in
// 256-bit integers. Quote is pure; callers apply the trade themselves.
func Quote(yesPool, noPool, amount uint64, buyYes bool) (Trade, error) {
	if yesPool == 0 || noPool == 0 {
		return Trade{}, domain.ErrDivisionByZero
	}

	in, out := yesPool, noPool
	if !buyYes {
		in, out = noPool, yesPool
	}

	k, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(yesPool), uint256.NewInt(noPool))
	if overflow {
		return Trade{}, domain.ErrMathOverflow
	}
	newIn, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(in), uint256.NewInt(amount))
	if overflow {
		return Trade{}, domain.ErrMathOverflow
	}
	newOut := new(uint256.Int).Div(k, newIn)

	outU := uint256.NewInt(out)
	if newOut.Gt(outU) {
		return Trade{}, domain.ErrMathUnderflow
	}
	cost := new(uint256.Int).Sub(outU, newOut)
	if !cost.IsUint64() {
		return Trade{}, domain.ErrMathOverflow
	}
	return Trade{Cost: cost.Uint64(), Claims: amount}, nil
}

// Invariant returns yes*no as a 256-bit integer.
func Invariant(yesPool, noPool uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(yesPool), uint256.NewInt(noPool))
}

// ImpliedYesPrice returns the YES probability implied by the reserves.
func ImpliedYesPrice(yesPool, noPool uint64) decimal.Decimal {
	return domain.ImpliedPrice(yesPool, noPool)
}

// AveragePrice returns cost per claim for a quoted trade, rounded to 6 places.
func (t Trade) AveragePrice() decimal.Decimal {
	if t.Claims == 0 {
		return decimal.Zero
	}
	return domain.Units(t.Cost).DivRound(domain.Units(t.Claims), 6)
}
