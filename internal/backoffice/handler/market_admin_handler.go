package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apihandler "github.com/oraculo/protocol/internal/api/handler"
	"github.com/oraculo/protocol/internal/service"
)

// MarketAdminHandler serves /admin/markets endpoints.
type MarketAdminHandler struct {
	markets *service.MarketService
	gov     *service.GovernanceService
}

// NewMarketAdminHandler creates a MarketAdminHandler.
func NewMarketAdminHandler(markets *service.MarketService, gov *service.GovernanceService) *MarketAdminHandler {
	return &MarketAdminHandler{markets: markets, gov: gov}
}

// List godoc
// GET /admin/markets?status=active&category=sports&page=1&limit=50
// Unlike the public listing this returns full market rows.
func (h *MarketAdminHandler) List(c *gin.Context) {
	f, page, ok := apihandler.MarketFilterFromQuery(c, 50, 500)
	if !ok {
		return
	}
	markets, total, err := h.markets.ListMarkets(c.Request.Context(), f)
	if err != nil {
		respondDomainError(c, err, "could not list markets")
		return
	}
	respondList(c, markets, total, page, f.Limit)
}

// Detail godoc
// GET /admin/markets/:id
func (h *MarketAdminHandler) Detail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	ctx := c.Request.Context()
	m, err := h.markets.GetMarket(ctx, id)
	if err != nil {
		respondDomainError(c, err, "could not fetch market")
		return
	}
	proposals, err := h.gov.ListProposals(ctx, id)
	if err != nil {
		respondDomainError(c, err, "could not list proposals")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"market":    m,
		"summary":   h.markets.Summary(m),
		"proposals": proposals,
	})
}
