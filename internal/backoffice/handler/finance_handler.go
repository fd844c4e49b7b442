package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apihandler "github.com/oraculo/protocol/internal/api/handler"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/service"
)

// FinanceHandler serves the token faucet and account balances.
type FinanceHandler struct {
	admin      *service.AdminService
	settlement *service.SettlementService
	cfg        domain.ProtocolConfig
}

// NewFinanceHandler creates a FinanceHandler.
func NewFinanceHandler(admin *service.AdminService, settlement *service.SettlementService, cfg domain.ProtocolConfig) *FinanceHandler {
	return &FinanceHandler{admin: admin, settlement: settlement, cfg: cfg}
}

// Faucet godoc
// POST /admin/faucet
// Body: {"mint":"governance","to":"bob","amount":"1000"}
// mint is "governance", "settlement" or the mint's own name.
func (h *FinanceHandler) Faucet(c *gin.Context) {
	var body struct {
		Mint   string `json:"mint"   binding:"required"`
		To     string `json:"to"     binding:"required"`
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	amount, err := apihandler.ParseAmount(body.Amount)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", err.Error())
		return
	}

	mint := domain.Mint(body.Mint)
	switch body.Mint {
	case "governance":
		mint = h.cfg.GovernanceMint
	case "settlement":
		mint = h.cfg.SettlementMint
	}

	to := domain.Account(body.To)
	if err := h.admin.Mint(c.Request.Context(), mint, to, amount); err != nil {
		respondDomainError(c, err, "could not mint tokens")
		return
	}
	respondSuccess(c, http.StatusOK, domain.TokensMinted{Mint: mint, To: to, Amount: amount})
}

// Balances godoc
// GET /admin/accounts/:account/balances
func (h *FinanceHandler) Balances(c *gin.Context) {
	account := domain.Account(c.Param("account"))
	bals, err := h.settlement.Balances(c.Request.Context(), account)
	if err != nil {
		respondDomainError(c, err, "could not fetch balances")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"account": account, "balances": bals})
}
