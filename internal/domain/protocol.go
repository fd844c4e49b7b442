package domain

import (
	"errors"
	"fmt"
)

// ProtocolConfig is set once at startup and passed explicitly to every
// service. Nothing in the trading or governance flows mutates it.
type ProtocolConfig struct {
	Authority      Account `json:"authority"       toml:"authority"`
	GovernanceMint Mint    `json:"governance_mint" toml:"governance_mint"`
	SettlementMint Mint    `json:"settlement_mint" toml:"settlement_mint"`
	Treasury       Account `json:"treasury"        toml:"treasury"`

	MinLiquidity         uint64 `json:"min_liquidity"         toml:"min_liquidity"`
	ProposalStake        uint64 `json:"proposal_stake"        toml:"proposal_stake"`
	Quorum               uint64 `json:"quorum"                toml:"quorum"`
	SupermajorityPercent uint8  `json:"supermajority_percent" toml:"supermajority_percent"`
}

// DefaultProtocolConfig returns the parameters used when nothing is configured.
func DefaultProtocolConfig() ProtocolConfig {
	return ProtocolConfig{
		Authority:            "authority",
		GovernanceMint:       "gov",
		SettlementMint:       "usdc",
		Treasury:             "treasury",
		MinLiquidity:         10_000_000,
		ProposalStake:        1_000_000,
		Quorum:               50,
		SupermajorityPercent: 51,
	}
}

// Validate checks the configuration invariants.
func (c ProtocolConfig) Validate() error {
	var errs []error
	if c.SupermajorityPercent < 51 || c.SupermajorityPercent > 100 {
		errs = append(errs, ErrInvalidSupermajority)
	}
	if c.Authority == "" {
		errs = append(errs, errors.New("protocol: authority is required"))
	}
	if c.Treasury == "" {
		errs = append(errs, errors.New("protocol: treasury is required"))
	}
	if c.GovernanceMint == "" || c.SettlementMint == "" {
		errs = append(errs, errors.New("protocol: governance and settlement mints are required"))
	}
	if c.GovernanceMint != "" && c.GovernanceMint == c.SettlementMint {
		errs = append(errs, fmt.Errorf("protocol: governance and settlement mint must differ (%q)", c.GovernanceMint))
	}
	return errors.Join(errs...)
}
