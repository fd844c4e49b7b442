package domain

import (
	"errors"

	"github.com/oraculo/protocol/pkg/safe"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors, compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Input validation errors: the caller must correct the request.
var (
	// ErrQuestionTooLong is returned when a market question exceeds MaxQuestionLen.
	ErrQuestionTooLong = errors.New("question is too long")

	// ErrDescriptionTooLong is returned when a description exceeds MaxDescriptionLen.
	ErrDescriptionTooLong = errors.New("description is too long")

	// ErrSourceTooLong is returned when a resolution source exceeds MaxSourceLen.
	ErrSourceTooLong = errors.New("resolution source is too long")

	// ErrEvidenceTooLong is returned when proposal evidence exceeds MaxEvidenceLen.
	ErrEvidenceTooLong = errors.New("evidence is too long")

	// ErrInvalidEndTime is returned when a market end time is not in the future.
	ErrInvalidEndTime = errors.New("end time must be in the future")

	// ErrEndTimeTooFar is returned when a market end time is more than a year out.
	ErrEndTimeTooFar = errors.New("end time is too far in the future")

	// ErrInsufficientLiquidity is returned when initial liquidity is below the
	// protocol minimum.
	ErrInsufficientLiquidity = errors.New("insufficient initial liquidity")

	// ErrBetTooSmall is returned when a bet amount is below MinBetAmount.
	ErrBetTooSmall = errors.New("bet amount is below the minimum")

	// ErrInvalidSupermajority is returned when supermajority_percent is outside [51,100].
	ErrInvalidSupermajority = errors.New("supermajority percent must be between 51 and 100")

	// ErrInvalidAmount is returned for zero amounts where a positive one is required.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// State precondition errors: the operation is attempted outside its window.
var (
	ErrMarketNotActive   = errors.New("market is not active")
	ErrMarketEnded       = errors.New("market trading has ended")
	ErrMarketNotEnded    = errors.New("market trading has not ended")
	ErrMarketNotResolved = errors.New("market is not resolved")
	ErrOutcomeNotSet     = errors.New("market outcome is not set")
	ErrProposalNotActive = errors.New("proposal is not active")
	ErrProposalActive    = errors.New("proposal is still active")
	ErrVotingEnded       = errors.New("voting period has ended")
	ErrVotingNotEnded    = errors.New("voting period has not ended")
	ErrAlreadyVoted      = errors.New("voter has already voted on this proposal")
	ErrStakeSettled      = errors.New("proposal stake already settled")
	ErrVoteReclaimed     = errors.New("vote weight already reclaimed")
	ErrProposalPassed    = errors.New("proposal passed; execute it instead")
)

// Arithmetic errors are always fatal to the operation.
var (
	ErrMathOverflow   = safe.ErrOverflow
	ErrMathUnderflow  = safe.ErrUnderflow
	ErrDivisionByZero = safe.ErrDivisionByZero
)

// Governance threshold errors are expected outcomes of an execute attempt.
var (
	// ErrQuorumNotReached is returned when the combined vote weight is below quorum.
	ErrQuorumNotReached = errors.New("quorum not reached")

	// ErrNoSupermajority is returned when neither side holds the required share.
	ErrNoSupermajority = errors.New("no supermajority")
)

// Lookup / uniqueness errors
var (
	ErrMarketNotFound   = errors.New("market not found")
	ErrProposalNotFound = errors.New("proposal not found")
	ErrVoteNotFound     = errors.New("vote not found")
	ErrMarketExists     = errors.New("market already exists")
	ErrProposalExists   = errors.New("proposal already exists")
)

// Ledger errors
var (
	// ErrInsufficientBalance is returned when an account cannot cover a
	// transfer or burn.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrMintNotFound is returned when a token has not been registered.
	ErrMintNotFound = errors.New("mint not found")

	// ErrMintExists is returned when registering a token twice.
	ErrMintExists = errors.New("mint already exists")
)

// Auth errors
var (
	// ErrUnauthorized is returned when the caller is not the required authority
	// or no valid token is present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the authenticated caller lacks permission.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrTokenExpired is returned when a JWT has passed its TTL.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or its signature
	// does not match.
	ErrTokenInvalid = errors.New("token is invalid")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidation reports input errors the caller can fix and resubmit.
func IsValidation(err error) bool {
	return isAny(err,
		ErrQuestionTooLong, ErrDescriptionTooLong, ErrSourceTooLong, ErrEvidenceTooLong,
		ErrInvalidEndTime, ErrEndTimeTooFar, ErrInsufficientLiquidity, ErrBetTooSmall,
		ErrInvalidSupermajority, ErrInvalidAmount,
	)
}

// IsPrecondition reports errors caused by attempting an operation outside
// the window where the entity state allows it.
func IsPrecondition(err error) bool {
	return isAny(err,
		ErrMarketNotActive, ErrMarketEnded, ErrMarketNotEnded, ErrMarketNotResolved,
		ErrOutcomeNotSet, ErrProposalNotActive, ErrProposalActive, ErrVotingEnded,
		ErrVotingNotEnded, ErrAlreadyVoted, ErrStakeSettled, ErrVoteReclaimed,
		ErrProposalPassed,
	)
}

// IsArithmetic reports overflow, underflow and division by zero.
func IsArithmetic(err error) bool {
	return isAny(err, ErrMathOverflow, ErrMathUnderflow, ErrDivisionByZero)
}

// IsThreshold reports a quorum or supermajority miss, so callers can tell
// "rally more votes" apart from a broken invariant.
func IsThreshold(err error) bool {
	return isAny(err, ErrQuorumNotReached, ErrNoSupermajority)
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors.
func IsNotFound(err error) bool {
	return isAny(err, ErrMarketNotFound, ErrProposalNotFound, ErrVoteNotFound, ErrMintNotFound)
}

// IsConflict returns true for duplicate-key and ledger balance conflicts.
func IsConflict(err error) bool {
	return isAny(err, ErrMarketExists, ErrProposalExists, ErrMintExists, ErrInsufficientBalance)
}

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool {
	return isAny(err, ErrUnauthorized, ErrForbidden, ErrTokenExpired, ErrTokenInvalid)
}
