package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/repository"
)

// AdminService holds the operations reserved for the protocol authority.
type AdminService struct {
	store  repository.Store
	cfg    domain.ProtocolConfig
	events Publisher
	log    *slog.Logger
}

// NewAdminService creates an AdminService. A nil events discards events.
func NewAdminService(store repository.Store, cfg domain.ProtocolConfig, events Publisher, log *slog.Logger) *AdminService {
	if events == nil {
		events = discardPublisher{}
	}
	return &AdminService{store: store, cfg: cfg, events: events, log: log}
}

// Bootstrap registers the governance and settlement mints under the
// authority. Mints that already exist are left alone, so it is safe to call
// on every start.
func (s *AdminService) Bootstrap(ctx context.Context) error {
	var created []domain.Mint
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		for _, mint := range []domain.Mint{s.cfg.GovernanceMint, s.cfg.SettlementMint} {
			// Look before creating: a failed INSERT would abort a PostgreSQL transaction.
			_, err := tx.Ledger().BalanceOf(ctx, mint, s.cfg.Authority)
			if err == nil {
				continue
			}
			if !errors.Is(err, domain.ErrMintNotFound) {
				return fmt.Errorf("look up %s: %w", mint, err)
			}
			if err = tx.Ledger().CreateMint(ctx, mint, s.cfg.Authority); err != nil {
				return fmt.Errorf("create %s: %w", mint, err)
			}
			created = append(created, mint)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("admin_service.Bootstrap: %w", err)
	}

	s.log.Info("protocol initialized",
		"authority", s.cfg.Authority,
		"governance_mint", s.cfg.GovernanceMint,
		"settlement_mint", s.cfg.SettlementMint,
		"treasury", s.cfg.Treasury,
		"min_liquidity", s.cfg.MinLiquidity,
		"proposal_stake", s.cfg.ProposalStake,
		"quorum", s.cfg.Quorum,
		"supermajority_percent", s.cfg.SupermajorityPercent,
		"created_mints", created,
	)
	return nil
}

// Mint issues amount of the governance or settlement token to an account.
func (s *AdminService) Mint(ctx context.Context, mint domain.Mint, to domain.Account, amount uint64) error {
	if mint != s.cfg.GovernanceMint && mint != s.cfg.SettlementMint {
		return domain.ErrMintNotFound
	}
	if amount == 0 {
		return domain.ErrInvalidAmount
	}
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		return tx.Ledger().MintTo(ctx, mint, to, amount, s.cfg.Authority)
	})
	if err != nil {
		return fmt.Errorf("admin_service.Mint: %w", err)
	}
	s.events.Publish(ctx, domain.TokensMinted{Mint: mint, To: to, Amount: amount})
	return nil
}

// Dashboard is the back-office overview.
type Dashboard struct {
	Stats    repository.Stats      `json:"stats"`
	Protocol domain.ProtocolConfig `json:"protocol"`
	Treasury TreasuryBalance       `json:"treasury"`
	Supply   []MintSupply          `json:"supply"`
}

// MintSupply is the circulating amount of one protocol token.
type MintSupply struct {
	Mint   domain.Mint `json:"mint"`
	Amount uint64      `json:"amount"`
}

// TreasuryBalance is the treasury's governance token balance.
type TreasuryBalance struct {
	Account domain.Account `json:"account"`
	Mint    domain.Mint    `json:"mint"`
	Amount  uint64         `json:"amount"`
}

// Dashboard aggregates protocol-wide totals.
func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin_service.Dashboard: stats: %w", err)
	}
	slashed, err := s.store.BalanceOf(ctx, s.cfg.GovernanceMint, s.cfg.Treasury)
	if err != nil && !errors.Is(err, domain.ErrMintNotFound) {
		return nil, fmt.Errorf("admin_service.Dashboard: treasury: %w", err)
	}
	var supply []MintSupply
	for _, mint := range []domain.Mint{s.cfg.GovernanceMint, s.cfg.SettlementMint} {
		amt, err := s.store.Supply(ctx, mint)
		if errors.Is(err, domain.ErrMintNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("admin_service.Dashboard: supply of %s: %w", mint, err)
		}
		supply = append(supply, MintSupply{Mint: mint, Amount: amt})
	}
	return &Dashboard{
		Stats:    st,
		Protocol: s.cfg,
		Treasury: TreasuryBalance{Account: s.cfg.Treasury, Mint: s.cfg.GovernanceMint, Amount: slashed},
		Supply:   supply,
	}, nil
}
