package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oraculo/protocol/internal/api/middleware"
	"github.com/oraculo/protocol/internal/service"
)

// SettlementHandler serves claims and balance queries.
type SettlementHandler struct {
	settlement *service.SettlementService
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settlement *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlement: settlement}
}

// Claim godoc
// POST /api/markets/:id/claim [JWT]
// Body: {"amount":"1000000"}
func (h *SettlementHandler) Claim(c *gin.Context) {
	marketID, ok := pathID(c, "market")
	if !ok {
		return
	}
	var body struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	amount, err := ParseAmount(body.Amount)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", err.Error())
		return
	}

	if err := h.settlement.ClaimWinnings(c.Request.Context(), middleware.GetAccount(c), marketID, amount); err != nil {
		RespondDomainError(c, err, "could not claim winnings")
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"market_id": marketID, "claimed": amount})
}

// Balances godoc
// GET /api/me/balances [JWT]
func (h *SettlementHandler) Balances(c *gin.Context) {
	account := middleware.GetAccount(c)
	bals, err := h.settlement.Balances(c.Request.Context(), account)
	if err != nil {
		RespondDomainError(c, err, "could not fetch balances")
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"account": account, "balances": bals})
}
