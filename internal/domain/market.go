// Package domain defines the core entities of the prediction-market protocol:
// markets priced by a constant-product curve, resolution proposals, votes and
// the immutable protocol configuration.
package domain

import (
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/pkg/safe"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	StatusActive    MarketStatus = "active"    // accepting bets until EndTime, then proposals
	StatusResolved  MarketStatus = "resolved"  // outcome finalised by governance
	StatusCancelled MarketStatus = "cancelled" // reserved; no flow reaches it
)

// Category classifies a market's subject.
type Category string

const (
	CategoryCrypto        Category = "crypto"
	CategorySports        Category = "sports"
	CategoryPolitics      Category = "politics"
	CategoryEntertainment Category = "entertainment"
	CategoryTechnology    Category = "technology"
	CategoryOther         Category = "other"
)

// ParseCategory maps a category name to a Category. Unknown names map to
// CategoryOther.
func ParseCategory(s string) Category {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryCrypto, CategorySports, CategoryPolitics, CategoryEntertainment, CategoryTechnology:
		return c
	default:
		return CategoryOther
	}
}

// Text limits are counted in Unicode code points.
const (
	MaxQuestionLen    = 200
	MaxDescriptionLen = 500
	MaxSourceLen      = 200
	MaxEvidenceLen    = 500
)

const (
	// MinBetAmount is the smallest accepted bet, in settlement base units.
	MinBetAmount uint64 = 1_000_000

	// MaxMarketDuration bounds how far in the future EndTime may be.
	MaxMarketDuration = 365 * 24 * time.Hour

	// ResolutionWindow is added to EndTime to get the informational
	// ResolutionTime deadline.
	ResolutionWindow = 7 * 24 * time.Hour
)

// ──────────────────────────────────────────────────────────────────────────────
// Market
// ──────────────────────────────────────────────────────────────────────────────

// Market is a binary-outcome market backed by creator-locked liquidity.
type Market struct {
	ID               uuid.UUID    `json:"id"                db:"id"`
	Creator          Account      `json:"creator"           db:"creator"`
	Question         string       `json:"question"          db:"question"`
	Description      string       `json:"description"       db:"description"`
	Category         Category     `json:"category"          db:"category"`
	ResolutionSource string       `json:"resolution_source" db:"resolution_source"`
	EndTime          time.Time    `json:"end_time"          db:"end_time"`
	ResolutionTime   time.Time    `json:"resolution_time"   db:"resolution_time"`
	Status           MarketStatus `json:"status"            db:"status"`
	Outcome          *bool        `json:"outcome"           db:"outcome"`
	ResolvedAt       *time.Time   `json:"resolved_at"       db:"resolved_at"`
	YesPool          uint64       `json:"yes_pool"          db:"yes_pool"`
	NoPool           uint64       `json:"no_pool"           db:"no_pool"`
	TotalLiquidity   uint64       `json:"total_liquidity"   db:"total_liquidity"`
	Volume           uint64       `json:"volume"            db:"volume"`
	UniqueBettors    uint64       `json:"unique_bettors"    db:"unique_bettors"`
	CreatedAt        time.Time    `json:"created_at"        db:"created_at"`
}

// CreateMarketParams carries the caller-supplied fields of a new market.
type CreateMarketParams struct {
	Question         string
	Description      string
	Category         Category
	ResolutionSource string
	EndTime          time.Time
	InitialLiquidity uint64
}

// NewMarket validates params and builds an active market whose pools each
// hold half of the initial liquidity.
func NewMarket(creator Account, p CreateMarketParams, minLiquidity uint64, now time.Time) (*Market, error) {
	if utf8.RuneCountInString(p.Question) > MaxQuestionLen {
		return nil, ErrQuestionTooLong
	}
	if utf8.RuneCountInString(p.Description) > MaxDescriptionLen {
		return nil, ErrDescriptionTooLong
	}
	if utf8.RuneCountInString(p.ResolutionSource) > MaxSourceLen {
		return nil, ErrSourceTooLong
	}
	if !p.EndTime.After(now) {
		return nil, ErrInvalidEndTime
	}
	if p.EndTime.After(now.Add(MaxMarketDuration)) {
		return nil, ErrEndTimeTooFar
	}
	// Both pools must start non-zero.
	if p.InitialLiquidity < minLiquidity || p.InitialLiquidity < 2 {
		return nil, ErrInsufficientLiquidity
	}

	half := p.InitialLiquidity / 2
	created := now.Truncate(time.Second).UTC()
	return &Market{
		ID:               MarketKey(creator, created),
		Creator:          creator,
		Question:         p.Question,
		Description:      p.Description,
		Category:         ParseCategory(string(p.Category)),
		ResolutionSource: p.ResolutionSource,
		EndTime:          p.EndTime.UTC(),
		ResolutionTime:   p.EndTime.Add(ResolutionWindow).UTC(),
		Status:           StatusActive,
		YesPool:          half,
		NoPool:           half,
		TotalLiquidity:   p.InitialLiquidity,
		CreatedAt:        created,
	}, nil
}

// IsActive returns true while the market accepts bets or proposals.
func (m *Market) IsActive() bool {
	return m.Status == StatusActive
}

// IsResolved returns true after governance has finalised the outcome.
func (m *Market) IsResolved() bool {
	return m.Status == StatusResolved
}

// CheckBet validates that a bet of amount may be placed at now.
func (m *Market) CheckBet(amount uint64, now time.Time) error {
	if !m.IsActive() {
		return ErrMarketNotActive
	}
	if !now.Before(m.EndTime) {
		return ErrMarketEnded
	}
	if amount < MinBetAmount {
		return ErrBetTooSmall
	}
	return nil
}

// ApplyBet records a priced trade: the bought side's pool grows by amount,
// the opposite pool is unchanged, liquidity and volume grow by cost.
// The market is left untouched on error.
func (m *Market) ApplyBet(buyYes bool, amount, cost uint64, firstBet bool) error {
	yes, no := m.YesPool, m.NoPool
	var err error
	if buyYes {
		yes, err = safe.Add(yes, amount)
	} else {
		no, err = safe.Add(no, amount)
	}
	if err != nil {
		return err
	}
	liquidity, err := safe.Add(m.TotalLiquidity, cost)
	if err != nil {
		return err
	}
	volume, err := safe.Add(m.Volume, cost)
	if err != nil {
		return err
	}
	bettors := m.UniqueBettors
	if firstBet {
		if bettors, err = safe.Add(bettors, 1); err != nil {
			return err
		}
	}

	m.YesPool, m.NoPool = yes, no
	m.TotalLiquidity, m.Volume, m.UniqueBettors = liquidity, volume, bettors
	return nil
}

// Resolve finalises the market outcome.
func (m *Market) Resolve(outcome bool, now time.Time) error {
	if !m.IsActive() {
		return ErrMarketNotActive
	}
	resolvedAt := now.UTC()
	m.Outcome = &outcome
	m.Status = StatusResolved
	m.ResolvedAt = &resolvedAt
	return nil
}

// WinningMint returns the claim token redeemable after resolution.
func (m *Market) WinningMint() (Mint, error) {
	if !m.IsResolved() {
		return "", ErrMarketNotResolved
	}
	if m.Outcome == nil {
		return "", ErrOutcomeNotSet
	}
	return ClaimMint(m.ID, *m.Outcome), nil
}

// YesPrice returns the implied YES probability, yes/(yes+no).
// Returns decimal.Zero when both pools are empty.
func (m *Market) YesPrice() decimal.Decimal {
	return ImpliedPrice(m.YesPool, m.NoPool)
}

// NoPrice returns the implied NO probability.
func (m *Market) NoPrice() decimal.Decimal {
	return ImpliedPrice(m.NoPool, m.YesPool)
}

// ImpliedPrice returns side/(side+other) rounded to 6 places.
func ImpliedPrice(side, other uint64) decimal.Decimal {
	s := Units(side)
	total := s.Add(Units(other))
	if total.IsZero() {
		return decimal.Zero
	}
	return s.DivRound(total, 6)
}

// Units converts a base-unit amount to a decimal.
func Units(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// ──────────────────────────────────────────────────────────────────────────────
// MarketSummary is a lightweight read model for WS broadcasts and list endpoints
// ──────────────────────────────────────────────────────────────────────────────

// MarketSummary is a derived, read-only view of a Market.
type MarketSummary struct {
	ID            uuid.UUID       `json:"id"`
	Question      string          `json:"question"`
	Category      Category        `json:"category"`
	Status        MarketStatus    `json:"status"`
	Outcome       *bool           `json:"outcome"`
	YesPrice      decimal.Decimal `json:"yes_price"`
	NoPrice       decimal.Decimal `json:"no_price"`
	YesPool       uint64          `json:"yes_pool"`
	NoPool        uint64          `json:"no_pool"`
	Volume        uint64          `json:"volume"`
	UniqueBettors uint64          `json:"unique_bettors"`
	EndTime       time.Time       `json:"end_time"`
	TimeLeftSec   int64           `json:"time_left_sec"`
}

// ToSummary builds a MarketSummary as of now.
func (m *Market) ToSummary(now time.Time) MarketSummary {
	left := m.EndTime.Sub(now)
	if left < 0 {
		left = 0
	}
	return MarketSummary{
		ID:            m.ID,
		Question:      m.Question,
		Category:      m.Category,
		Status:        m.Status,
		Outcome:       m.Outcome,
		YesPrice:      m.YesPrice(),
		NoPrice:       m.NoPrice(),
		YesPool:       m.YesPool,
		NoPool:        m.NoPool,
		Volume:        m.Volume,
		UniqueBettors: m.UniqueBettors,
		EndTime:       m.EndTime,
		TimeLeftSec:   int64(left.Seconds()),
	}
}
