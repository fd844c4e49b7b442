package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers
// ──────────────────────────────────────────────────────────────────────────────

// RespondSuccess writes {"success": true, "data": data} with the given status.
func RespondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// RespondError writes {"success": false, "error": msg, "code": code}.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// RespondList writes {"success": true, "data": items, "meta": {...}}.
func RespondList(c *gin.Context, items interface{}, total, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta": gin.H{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Domain error mapping
// ──────────────────────────────────────────────────────────────────────────────

type errorMapping struct {
	err    error
	status int
	code   string
}

// specific sentinels get their own code; everything else falls back to its
// class in RespondDomainError.
var errorTable = []errorMapping{
	{domain.ErrBetTooSmall, http.StatusBadRequest, "ERR_BET_TOO_SMALL"},
	{domain.ErrInsufficientLiquidity, http.StatusBadRequest, "ERR_INSUFFICIENT_LIQUIDITY"},
	{domain.ErrInsufficientBalance, http.StatusPaymentRequired, "ERR_INSUFFICIENT_BALANCE"},
	{domain.ErrMarketNotFound, http.StatusNotFound, "ERR_MARKET_NOT_FOUND"},
	{domain.ErrProposalNotFound, http.StatusNotFound, "ERR_PROPOSAL_NOT_FOUND"},
	{domain.ErrVoteNotFound, http.StatusNotFound, "ERR_VOTE_NOT_FOUND"},
	{domain.ErrAlreadyVoted, http.StatusConflict, "ERR_ALREADY_VOTED"},
	{domain.ErrMarketEnded, http.StatusConflict, "ERR_MARKET_ENDED"},
	{domain.ErrMarketNotActive, http.StatusConflict, "ERR_MARKET_NOT_ACTIVE"},
	{domain.ErrVotingEnded, http.StatusConflict, "ERR_VOTING_ENDED"},
	{domain.ErrVotingNotEnded, http.StatusConflict, "ERR_VOTING_NOT_ENDED"},
	{domain.ErrProposalPassed, http.StatusConflict, "ERR_PROPOSAL_PASSED"},
	{domain.ErrQuorumNotReached, http.StatusUnprocessableEntity, "ERR_QUORUM_NOT_REACHED"},
	{domain.ErrNoSupermajority, http.StatusUnprocessableEntity, "ERR_NO_SUPERMAJORITY"},
	{domain.ErrTokenExpired, http.StatusUnauthorized, "ERR_TOKEN_EXPIRED"},
	{domain.ErrForbidden, http.StatusForbidden, "ERR_FORBIDDEN"},
}

// RespondDomainError maps err onto the envelope. fallback is the message used
// for unclassified errors, whose text is never exposed.
func RespondDomainError(c *gin.Context, err error, fallback string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			RespondError(c, m.status, m.code, m.err.Error())
			return
		}
	}
	switch {
	case domain.IsValidation(err):
		RespondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
	case domain.IsNotFound(err):
		RespondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
	case domain.IsPrecondition(err):
		RespondError(c, http.StatusConflict, "ERR_PRECONDITION", err.Error())
	case domain.IsConflict(err):
		RespondError(c, http.StatusConflict, "ERR_CONFLICT", err.Error())
	case domain.IsAuthError(err):
		RespondError(c, http.StatusUnauthorized, "ERR_UNAUTHORIZED", domain.ErrUnauthorized.Error())
	case domain.IsArithmetic(err):
		_ = c.Error(err)
		RespondError(c, http.StatusInternalServerError, "ERR_MATH", fallback)
	default:
		_ = c.Error(err)
		RespondError(c, http.StatusInternalServerError, "ERR_INTERNAL", fallback)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Request helpers
// ──────────────────────────────────────────────────────────────────────────────

// ParsePagination reads page/limit with the given default and cap.
func ParsePagination(c *gin.Context, def, maxLimit int) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxLimit {
		limit = def
	}
	return
}

// pathID parses the :id path parameter, writing a 400 on failure.
func pathID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

var maxAmount = decimal.RequireFromString(strconv.FormatUint(math.MaxUint64, 10))

// ParseAmount parses a positive whole number of base units. Amounts travel as
// decimal strings so clients never round them through a float.
func ParseAmount(s string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.New("amount must be a decimal string")
	}
	if !d.IsInteger() || !d.IsPositive() || d.GreaterThan(maxAmount) {
		return 0, errors.New("amount must be a positive whole number of base units")
	}
	return strconv.ParseUint(d.String(), 10, 64)
}

// parseSide maps "yes"/"no" onto buyYes.
func parseSide(s string) (buyYes bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return true, true
	case "no":
		return false, true
	}
	return false, false
}
