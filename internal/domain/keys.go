package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Identities
// ──────────────────────────────────────────────────────────────────────────────

// Account identifies a ledger owner: a user, the treasury, or a custody
// account derived from an entity key.
type Account string

// Mint identifies a fungible token on the ledger.
type Mint string

// Namespaces for deterministic entity keys. Changing either value changes
// every derived ID, so treat them as part of the storage format.
var (
	MarketNamespace   = uuid.MustParse("8f1d9c52-6b0e-4c53-9a7e-3f2b1e5d6a10")
	ProposalNamespace = uuid.MustParse("2c7a4e19-d3b8-4f62-8e05-91a6b7c4d2f3")
)

// MarketKey derives a market ID from its creator and creation second.
func MarketKey(creator Account, createdAt time.Time) uuid.UUID {
	name := string(creator) + ":" + strconv.FormatInt(createdAt.Unix(), 10)
	return uuid.NewSHA1(MarketNamespace, []byte(name))
}

// ProposalKey derives a proposal ID from its market and proposer, which caps
// proposals at one per (market, proposer).
func ProposalKey(marketID uuid.UUID, proposer Account) uuid.UUID {
	return uuid.NewSHA1(ProposalNamespace, []byte(marketID.String()+":"+string(proposer)))
}

// VaultAccount holds the settlement currency locked in a market.
func VaultAccount(marketID uuid.UUID) Account { return Account("vault:" + marketID.String()) }

// MarketAuthority is the mint authority of a market's claim tokens.
func MarketAuthority(marketID uuid.UUID) Account { return Account("market:" + marketID.String()) }

// YesMint is the YES claim token of a market.
func YesMint(marketID uuid.UUID) Mint { return Mint("yes:" + marketID.String()) }

// NoMint is the NO claim token of a market.
func NoMint(marketID uuid.UUID) Mint { return Mint("no:" + marketID.String()) }

// ClaimMint returns the claim token for one side of a market.
func ClaimMint(marketID uuid.UUID, yes bool) Mint {
	if yes {
		return YesMint(marketID)
	}
	return NoMint(marketID)
}

// StakeAccount escrows the proposer's stake for a proposal.
func StakeAccount(proposalID uuid.UUID) Account { return Account("stake:" + proposalID.String()) }

// EscrowAccount escrows the governance tokens voters lock on a proposal.
func EscrowAccount(proposalID uuid.UUID) Account { return Account("escrow:" + proposalID.String()) }
