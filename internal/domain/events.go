package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an observable protocol event.
type EventType string

const (
	EventMarketCreated      EventType = "market_created"
	EventBetPlaced          EventType = "bet_placed"
	EventResolutionProposed EventType = "resolution_proposed"
	EventVoteCast           EventType = "vote_cast"
	EventResolutionLapsed   EventType = "resolution_lapsed"
	EventMarketResolved     EventType = "market_resolved"
	EventWinningsClaimed    EventType = "winnings_claimed"
	EventStakeSettled       EventType = "stake_settled"
	EventVoteReclaimed      EventType = "vote_reclaimed"
	EventTokensMinted       EventType = "tokens_minted"
)

// Event is emitted once per successful operation, after commit.
type Event interface {
	EventType() EventType
}

// MarketCreated is emitted by market creation.
type MarketCreated struct {
	Market           uuid.UUID `json:"market"`
	Creator          Account   `json:"creator"`
	Question         string    `json:"question"`
	Category         Category  `json:"category"`
	EndTime          time.Time `json:"end_time"`
	InitialLiquidity uint64    `json:"initial_liquidity"`
}

// BetPlaced is emitted for every trade.
type BetPlaced struct {
	Market   uuid.UUID `json:"market"`
	User     Account   `json:"user"`
	BetOnYes bool      `json:"bet_on_yes"`
	Amount   uint64    `json:"amount"`
	Cost     uint64    `json:"cost"`
	YesPool  uint64    `json:"yes_pool"`
	NoPool   uint64    `json:"no_pool"`
}

// ResolutionProposed is emitted when a proposal opens for voting.
type ResolutionProposed struct {
	Market       uuid.UUID `json:"market"`
	Proposal     uuid.UUID `json:"proposal"`
	Proposer     Account   `json:"proposer"`
	Outcome      bool      `json:"outcome"`
	Evidence     string    `json:"evidence"`
	VotingEndsAt time.Time `json:"voting_ends_at"`
}

// VoteCast is emitted per vote with the updated tally.
type VoteCast struct {
	Proposal     uuid.UUID `json:"proposal"`
	Voter        Account   `json:"voter"`
	Weight       uint64    `json:"weight"`
	Support      bool      `json:"support"`
	VotesFor     uint64    `json:"votes_for"`
	VotesAgainst uint64    `json:"votes_against"`
}

// MarketResolved is emitted when a proposal is executed.
type MarketResolved struct {
	Market          uuid.UUID   `json:"market"`
	Proposal        uuid.UUID   `json:"proposal"`
	Outcome         bool        `json:"outcome"`
	TotalVotes      uint64      `json:"total_votes"`
	ProposerCorrect bool        `json:"proposer_correct"`
	Rejected        []uuid.UUID `json:"rejected,omitempty"`
}

// ResolutionLapsed is emitted when a proposal's vote closes without passing.
type ResolutionLapsed struct {
	Market       uuid.UUID `json:"market"`
	Proposal     uuid.UUID `json:"proposal"`
	VotesFor     uint64    `json:"votes_for"`
	VotesAgainst uint64    `json:"votes_against"`
}

// WinningsClaimed is emitted when claim tokens are redeemed.
type WinningsClaimed struct {
	Market uuid.UUID `json:"market"`
	User   Account   `json:"user"`
	Amount uint64    `json:"amount"`
}

// StakeSettled is emitted when a proposer's stake is refunded or slashed.
type StakeSettled struct {
	Proposal  uuid.UUID `json:"proposal"`
	Proposer  Account   `json:"proposer"`
	Recipient Account   `json:"recipient"`
	Amount    uint64    `json:"amount"`
	Slashed   bool      `json:"slashed"`
}

// VoteReclaimed is emitted when a voter takes back escrowed weight.
type VoteReclaimed struct {
	Proposal uuid.UUID `json:"proposal"`
	Voter    Account   `json:"voter"`
	Weight   uint64    `json:"weight"`
}

// TokensMinted is emitted when the authority mints protocol tokens.
type TokensMinted struct {
	Mint   Mint    `json:"mint"`
	To     Account `json:"to"`
	Amount uint64  `json:"amount"`
}

func (MarketCreated) EventType() EventType      { return EventMarketCreated }
func (BetPlaced) EventType() EventType          { return EventBetPlaced }
func (ResolutionProposed) EventType() EventType { return EventResolutionProposed }
func (VoteCast) EventType() EventType           { return EventVoteCast }
func (MarketResolved) EventType() EventType     { return EventMarketResolved }
func (ResolutionLapsed) EventType() EventType   { return EventResolutionLapsed }
func (WinningsClaimed) EventType() EventType    { return EventWinningsClaimed }
func (StakeSettled) EventType() EventType       { return EventStakeSettled }
func (VoteReclaimed) EventType() EventType      { return EventVoteReclaimed }
func (TokensMinted) EventType() EventType       { return EventTokensMinted }

// EventMarket returns the market an event concerns, or uuid.Nil.
func EventMarket(e Event) uuid.UUID {
	switch ev := e.(type) {
	case MarketCreated:
		return ev.Market
	case BetPlaced:
		return ev.Market
	case ResolutionProposed:
		return ev.Market
	case MarketResolved:
		return ev.Market
	case ResolutionLapsed:
		return ev.Market
	case WinningsClaimed:
		return ev.Market
	default:
		return uuid.Nil
	}
}
