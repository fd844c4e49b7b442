package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/ledger"
	"github.com/oraculo/protocol/internal/repository"
)

// SettlementService redeems winning claim tokens 1:1 for the settlement
// currency held in a resolved market's vault.
type SettlementService struct {
	store  repository.Store
	cfg    domain.ProtocolConfig
	events Publisher
	log    *slog.Logger
}

// NewSettlementService creates a SettlementService. A nil events discards
// events.
func NewSettlementService(store repository.Store, cfg domain.ProtocolConfig, events Publisher, log *slog.Logger) *SettlementService {
	if events == nil {
		events = discardPublisher{}
	}
	return &SettlementService{store: store, cfg: cfg, events: events, log: log}
}

// ClaimWinnings burns amount of user's winning claims and pays the same
// amount from the vault. Nothing moves unless both steps succeed.
func (s *SettlementService) ClaimWinnings(ctx context.Context, user domain.Account, marketID uuid.UUID, amount uint64) error {
	if amount == 0 {
		return domain.ErrInvalidAmount
	}

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		m, err := tx.Markets().GetForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		winning, err := m.WinningMint()
		if err != nil {
			return err
		}
		if err = tx.Ledger().Burn(ctx, winning, user, amount, user); err != nil {
			return fmt.Errorf("burn claims: %w", err)
		}
		if err = tx.Ledger().Transfer(ctx, s.cfg.SettlementMint, domain.VaultAccount(m.ID), user, amount); err != nil {
			return fmt.Errorf("pay out: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("settlement_service.ClaimWinnings: %w", err)
	}

	s.log.Info("winnings claimed", "market", marketID, "user", user, "amount", amount)
	s.events.Publish(ctx, domain.WinningsClaimed{Market: marketID, User: user, Amount: amount})
	return nil
}

// Balances returns every non-zero balance user holds.
func (s *SettlementService) Balances(ctx context.Context, user domain.Account) ([]ledger.Balance, error) {
	return s.store.Holdings(ctx, user)
}
