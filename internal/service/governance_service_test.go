package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/oraculo/protocol/internal/domain"
)

func TestEndToEnd_CreateBetResolveClaim(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	m := h.createMarket()
	h.fund("usdc", "bob", 5_000_000)

	h.now = t0.Add(time.Hour)
	if _, err := h.markets.PlaceBet(h.ctx, "bob", m.ID, 1_000_000, true); err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	p := h.propose(m, "carol", true)
	h.vote(p, "dave", 60, true)
	h.vote(p, "erin", 40, false)

	h.now = p.VotingEndsAt
	res, err := h.governance.ExecuteResolution(h.ctx, p.ID)
	if err != nil {
		t.Fatalf("ExecuteResolution: %v", err)
	}
	if !res.Outcome || res.TotalVotes != 100 || !res.ProposerCorrect {
		t.Errorf("resolution = %+v", res)
	}

	resolved := h.market(m.ID)
	if resolved.Status != domain.StatusResolved || resolved.Outcome == nil || !*resolved.Outcome {
		t.Fatalf("market after execute = %+v", resolved)
	}
	if resolved.ResolvedAt == nil || !resolved.ResolvedAt.Equal(p.VotingEndsAt) {
		t.Errorf("ResolvedAt = %v", resolved.ResolvedAt)
	}

	vaultBefore := h.balance("usdc", domain.VaultAccount(m.ID))
	bobBefore := h.balance("usdc", "bob")
	if err := h.settlement.ClaimWinnings(h.ctx, "bob", m.ID, 1_000_000); err != nil {
		t.Fatalf("ClaimWinnings: %v", err)
	}
	if got := h.balance("usdc", domain.VaultAccount(m.ID)); got != vaultBefore-1_000_000 {
		t.Errorf("vault = %d, want %d", got, vaultBefore-1_000_000)
	}
	if got := h.balance("usdc", "bob"); got != bobBefore+1_000_000 {
		t.Errorf("bob = %d, want %d", got, bobBefore+1_000_000)
	}
	if got := h.balance(domain.YesMint(m.ID), "bob"); got != 0 {
		t.Errorf("claims left after redeem = %d", got)
	}
	if _, ok := h.events.last().(domain.WinningsClaimed); !ok {
		t.Errorf("last event = %T, want WinningsClaimed", h.events.last())
	}
}

func TestVote_Rules(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	m := h.createMarket()
	p := h.propose(m, "carol", true)

	h.vote(p, "dave", 30, true)
	h.fund("gov", "dave", 30)
	if _, err := h.governance.Vote(h.ctx, "dave", p.ID, 30, false); !errors.Is(err, domain.ErrAlreadyVoted) {
		t.Errorf("second vote: err = %v, want ErrAlreadyVoted", err)
	}
	if got := h.balance("gov", "dave"); got != 30 {
		t.Errorf("second vote escrowed funds: dave holds %d", got)
	}
	if _, err := h.governance.Vote(h.ctx, "erin", p.ID, 0, true); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero weight: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := h.governance.Vote(h.ctx, "frank", p.ID, 10, true); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("unfunded vote: err = %v, want ErrInsufficientBalance", err)
	}
	if _, err := h.store.GetVote(h.ctx, p.ID, "frank"); !errors.Is(err, domain.ErrVoteNotFound) {
		t.Errorf("failed vote left a record: %v", err)
	}

	got, _ := h.governance.GetProposal(h.ctx, p.ID)
	if got.VotesFor != 30 || got.VotesAgainst != 0 {
		t.Errorf("tally = %d/%d, want 30/0", got.VotesFor, got.VotesAgainst)
	}
	if esc := h.balance("gov", domain.EscrowAccount(p.ID)); esc != 30 {
		t.Errorf("escrow = %d, want 30", esc)
	}

	h.now = p.VotingEndsAt
	h.fund("gov", "erin", 5)
	if _, err := h.governance.Vote(h.ctx, "erin", p.ID, 5, true); !errors.Is(err, domain.ErrVotingEnded) {
		t.Errorf("late vote: err = %v, want ErrVotingEnded", err)
	}
}

func TestPropose_Rules(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	m := h.createMarket()

	h.fund("gov", "carol", 2_000_000)
	if _, err := h.governance.ProposeResolution(h.ctx, "carol", m.ID, true, ""); !errors.Is(err, domain.ErrMarketNotEnded) {
		t.Errorf("before end: err = %v, want ErrMarketNotEnded", err)
	}

	h.now = m.EndTime.Add(time.Second)
	p, err := h.governance.ProposeResolution(h.ctx, "carol", m.ID, true, "")
	if err != nil {
		t.Fatal(err)
	}
	if got := h.balance("gov", domain.StakeAccount(p.ID)); got != 1_000_000 {
		t.Errorf("stake escrow = %d, want 1M", got)
	}
	if _, err := h.governance.ProposeResolution(h.ctx, "carol", m.ID, false, ""); !errors.Is(err, domain.ErrProposalExists) {
		t.Errorf("duplicate: err = %v, want ErrProposalExists", err)
	}
	if got := h.balance("gov", "carol"); got != 1_000_000 {
		t.Errorf("carol = %d, duplicate proposal moved stake", got)
	}
	if _, err := h.governance.ProposeResolution(h.ctx, "nobody", m.ID, true, ""); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("unstaked: err = %v, want ErrInsufficientBalance", err)
	}
	list, err := h.governance.ListProposals(h.ctx, m.ID)
	if err != nil || len(list) != 1 {
		t.Errorf("ListProposals = %d, %v", len(list), err)
	}
}

func TestExecute_Thresholds(t *testing.T) {
	tests := []struct {
		name    string
		percent uint8
		quorum  uint64
		wantErr error
	}{
		{"60/40 Passes At 51%", 51, 50, nil},
		{"60/40 Fails At 70%", 70, 50, domain.ErrNoSupermajority},
		{"Below Quorum", 51, 101, domain.ErrQuorumNotReached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultProtocolConfig()
			cfg.SupermajorityPercent = tt.percent
			cfg.Quorum = tt.quorum
			h := newHarness(t, cfg)
			m := h.createMarket()
			p := h.propose(m, "carol", true)
			h.vote(p, "dave", 60, true)
			h.vote(p, "erin", 40, false)

			h.now = p.VotingEndsAt
			_, err := h.governance.ExecuteResolution(h.ctx, p.ID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				return
			}
			if got := h.market(m.ID); got.Status != domain.StatusActive {
				t.Errorf("market status = %s after failed execute", got.Status)
			}
			if got, _ := h.governance.GetProposal(h.ctx, p.ID); got.Status != domain.ProposalActive {
				t.Errorf("proposal status = %s after failed execute", got.Status)
			}
		})
	}
}

func TestExecute_TooEarlyAndTwice(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	m := h.createMarket()
	p := h.propose(m, "carol", false)
	h.vote(p, "dave", 100, true)

	h.now = p.VotingEndsAt.Add(-time.Second)
	if _, err := h.governance.ExecuteResolution(h.ctx, p.ID); !errors.Is(err, domain.ErrVotingNotEnded) {
		t.Errorf("early: err = %v, want ErrVotingNotEnded", err)
	}

	h.now = p.VotingEndsAt
	res, err := h.governance.ExecuteResolution(h.ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	// votes_for > votes_against decides the outcome, not the proposer's claim.
	if !res.Outcome || res.ProposerCorrect {
		t.Errorf("resolution = %+v", res)
	}

	before := *h.market(m.ID)
	h.now = h.now.Add(time.Hour)
	if _, err := h.governance.ExecuteResolution(h.ctx, p.ID); !errors.Is(err, domain.ErrProposalNotActive) {
		t.Fatalf("re-execute: err = %v, want ErrProposalNotActive", err)
	}
	after := *h.market(m.ID)
	if !after.ResolvedAt.Equal(*before.ResolvedAt) || after.Status != before.Status || *after.Outcome != *before.Outcome {
		t.Errorf("re-execute changed the market: %+v -> %+v", before, after)
	}
}

func TestExecute_RejectsSiblingsAndSettlesStakes(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	m := h.createMarket()
	right := h.propose(m, "carol", true)
	wrong := h.propose(m, "frank", false)
	h.vote(right, "dave", 80, true)
	h.vote(wrong, "erin", 10, true)

	h.now = right.VotingEndsAt
	res, err := h.governance.ExecuteResolution(h.ctx, right.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rejected) != 1 || res.Rejected[0] != wrong.ID {
		t.Fatalf("rejected = %v, want [%s]", res.Rejected, wrong.ID)
	}
	sib, _ := h.governance.GetProposal(h.ctx, wrong.ID)
	if sib.Status != domain.ProposalRejected || sib.ProposerCorrect == nil || *sib.ProposerCorrect {
		t.Errorf("sibling = %+v", sib)
	}
	if _, err := h.governance.ExecuteResolution(h.ctx, wrong.ID); !errors.Is(err, domain.ErrProposalNotActive) {
		t.Errorf("execute rejected sibling: err = %v", err)
	}

	// Correct proposer is refunded.
	refund, err := h.governance.SettleProposalStake(h.ctx, right.ID)
	if err != nil {
		t.Fatal(err)
	}
	if refund.Slashed || refund.Recipient != "carol" || h.balance("gov", "carol") != 1_000_000 {
		t.Errorf("refund = %+v, carol holds %d", refund, h.balance("gov", "carol"))
	}
	if _, err := h.governance.SettleProposalStake(h.ctx, right.ID); !errors.Is(err, domain.ErrStakeSettled) {
		t.Errorf("settle twice: err = %v, want ErrStakeSettled", err)
	}

	// Wrong proposer is slashed to the treasury.
	slash, err := h.governance.SettleProposalStake(h.ctx, wrong.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !slash.Slashed || h.balance("gov", "treasury") != 1_000_000 || h.balance("gov", "frank") != 0 {
		t.Errorf("slash = %+v, treasury holds %d", slash, h.balance("gov", "treasury"))
	}

	unsettled, err := h.governance.ListUnsettled(h.ctx, 10)
	if err != nil || len(unsettled) != 0 {
		t.Errorf("unsettled = %d, %v", len(unsettled), err)
	}
}

func TestReclaimVote(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	m := h.createMarket()
	p := h.propose(m, "carol", true)
	h.vote(p, "dave", 70, true)

	if _, err := h.governance.ReclaimVote(h.ctx, "dave", p.ID); !errors.Is(err, domain.ErrProposalActive) {
		t.Errorf("while active: err = %v, want ErrProposalActive", err)
	}

	h.now = p.VotingEndsAt
	if _, err := h.governance.ExecuteResolution(h.ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	rec, err := h.governance.ReclaimVote(h.ctx, "dave", p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Reclaimed || h.balance("gov", "dave") != 70 || h.balance("gov", domain.EscrowAccount(p.ID)) != 0 {
		t.Errorf("after reclaim: rec=%+v dave=%d", rec, h.balance("gov", "dave"))
	}
	if _, err := h.governance.ReclaimVote(h.ctx, "dave", p.ID); !errors.Is(err, domain.ErrVoteReclaimed) {
		t.Errorf("reclaim twice: err = %v, want ErrVoteReclaimed", err)
	}
	if _, err := h.governance.ReclaimVote(h.ctx, "erin", p.ID); !errors.Is(err, domain.ErrVoteNotFound) {
		t.Errorf("no vote: err = %v, want ErrVoteNotFound", err)
	}
}

// TestFailedTally_ReleasesEscrow covers a vote that closes below quorum and
// is never superseded: the stake and every vote must still come back.
func TestFailedTally_ReleasesEscrow(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	m := h.createMarket()
	p := h.propose(m, "carol", true)
	h.vote(p, "dave", 10, true)

	if _, err := h.governance.LapseProposal(h.ctx, p.ID); !errors.Is(err, domain.ErrVotingNotEnded) {
		t.Errorf("lapse while voting: err = %v, want ErrVotingNotEnded", err)
	}

	h.now = p.VotingEndsAt
	if _, err := h.governance.ExecuteResolution(h.ctx, p.ID); !errors.Is(err, domain.ErrQuorumNotReached) {
		t.Fatalf("execute: err = %v, want ErrQuorumNotReached", err)
	}

	h.now = h.now.AddDate(1, 0, 0)
	rec, err := h.governance.ReclaimVote(h.ctx, "dave", p.ID)
	if err != nil {
		t.Fatalf("ReclaimVote: %v", err)
	}
	if !rec.Reclaimed || h.balance("gov", "dave") != 10 || h.balance("gov", domain.EscrowAccount(p.ID)) != 0 {
		t.Errorf("after reclaim: dave=%d escrow=%d", h.balance("gov", "dave"), h.balance("gov", domain.EscrowAccount(p.ID)))
	}
	reclaimed, ok := h.events.last().(domain.VoteReclaimed)
	if !ok || reclaimed.Weight != 10 {
		t.Errorf("last event = %#v", h.events.last())
	}

	got, _ := h.governance.GetProposal(h.ctx, p.ID)
	if got.Status != domain.ProposalLapsed || got.ProposerCorrect != nil {
		t.Errorf("proposal = %s correct=%v, want lapsed with no verdict", got.Status, got.ProposerCorrect)
	}

	ev, err := h.governance.SettleProposalStake(h.ctx, p.ID)
	if err != nil {
		t.Fatalf("SettleProposalStake: %v", err)
	}
	if ev.Slashed || ev.Recipient != "carol" || h.balance("gov", "carol") != h.cfg.ProposalStake {
		t.Errorf("settle = %+v, carol = %d", ev, h.balance("gov", "carol"))
	}
	if h.balance("gov", domain.StakeAccount(p.ID)) != 0 {
		t.Errorf("stake escrow not emptied")
	}

	if _, err := h.governance.LapseProposal(h.ctx, p.ID); !errors.Is(err, domain.ErrProposalNotActive) {
		t.Errorf("lapse twice: err = %v, want ErrProposalNotActive", err)
	}
	if !h.market(m.ID).IsActive() {
		t.Errorf("market left the active state")
	}

	// Another proposer can still resolve the market.
	next := h.propose(m, "frank", true)
	h.vote(next, "gina", 60, true)
	h.now = next.VotingEndsAt
	if _, err := h.governance.ExecuteResolution(h.ctx, next.ID); err != nil {
		t.Fatalf("execute second proposal: %v", err)
	}
}

func TestLapseProposal(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	m := h.createMarket()
	weak := h.propose(m, "carol", true)
	h.vote(weak, "dave", 60, true)
	h.vote(weak, "erin", 60, false)
	strong := h.propose(m, "frank", false)
	h.vote(strong, "gina", 80, true)

	h.now = strong.VotingEndsAt
	if _, err := h.governance.LapseProposal(h.ctx, strong.ID); !errors.Is(err, domain.ErrProposalPassed) {
		t.Errorf("passing proposal: err = %v, want ErrProposalPassed", err)
	}

	ev, err := h.governance.LapseProposal(h.ctx, weak.ID)
	if err != nil {
		t.Fatalf("LapseProposal: %v", err)
	}
	if ev.Market != m.ID || ev.VotesFor != 60 || ev.VotesAgainst != 60 {
		t.Errorf("event = %+v", ev)
	}
	if last, ok := h.events.last().(domain.ResolutionLapsed); !ok || last.Proposal != weak.ID {
		t.Errorf("last event = %#v", h.events.last())
	}

	// The lapsed proposal is no longer a sibling to reject.
	res, err := h.governance.ExecuteResolution(h.ctx, strong.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rejected) != 0 {
		t.Errorf("rejected = %v, want none", res.Rejected)
	}
	if got, _ := h.governance.GetProposal(h.ctx, weak.ID); got.Status != domain.ProposalLapsed {
		t.Errorf("weak proposal = %s, want lapsed", got.Status)
	}
}

func TestListDue(t *testing.T) {
	h := newHarness(t, domain.DefaultProtocolConfig())
	m := h.createMarket()
	p := h.propose(m, "carol", true)

	due, _ := h.governance.ListDue(h.ctx, 10)
	if len(due) != 0 {
		t.Fatalf("due before deadline = %d", len(due))
	}
	h.now = p.VotingEndsAt
	due, _ = h.governance.ListDue(h.ctx, 10)
	if len(due) != 1 || due[0].ID != p.ID {
		t.Errorf("due = %v", due)
	}
}
