package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oraculo/protocol/internal/api/middleware"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/repository"
	"github.com/oraculo/protocol/internal/service"
)

// MarketHandler serves market creation, trading and query endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// marketView is a full market plus its derived prices.
type marketView struct {
	*domain.Market
	Summary domain.MarketSummary `json:"summary"`
}

// Create godoc
// POST /api/markets [JWT]
// Body: {"question":"...","category":"crypto","end_time":"2026-12-31T00:00:00Z","initial_liquidity":"10000000"}
func (h *MarketHandler) Create(c *gin.Context) {
	var body struct {
		Question         string    `json:"question"          binding:"required"`
		Description      string    `json:"description"`
		Category         string    `json:"category"`
		ResolutionSource string    `json:"resolution_source"`
		EndTime          time.Time `json:"end_time"          binding:"required"`
		InitialLiquidity string    `json:"initial_liquidity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	liquidity, err := ParseAmount(body.InitialLiquidity)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", err.Error())
		return
	}

	m, err := h.marketSvc.CreateMarket(c.Request.Context(), middleware.GetAccount(c), domain.CreateMarketParams{
		Question:         body.Question,
		Description:      body.Description,
		Category:         domain.ParseCategory(body.Category),
		ResolutionSource: body.ResolutionSource,
		EndTime:          body.EndTime,
		InitialLiquidity: liquidity,
	})
	if err != nil {
		RespondDomainError(c, err, "could not create market")
		return
	}
	RespondSuccess(c, http.StatusCreated, marketView{Market: m, Summary: h.marketSvc.Summary(m)})
}

// PlaceBet godoc
// POST /api/markets/:id/bets [JWT]
// Body: {"side":"yes","amount":"1000000"}
func (h *MarketHandler) PlaceBet(c *gin.Context) {
	id, ok := pathID(c, "market")
	if !ok {
		return
	}
	var body struct {
		Side   string `json:"side"   binding:"required"`
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	buyYes, ok := parseSide(body.Side)
	if !ok {
		RespondError(c, http.StatusBadRequest, "ERR_INVALID_SIDE", `side must be "yes" or "no"`)
		return
	}
	amount, err := ParseAmount(body.Amount)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", err.Error())
		return
	}

	res, err := h.marketSvc.PlaceBet(c.Request.Context(), middleware.GetAccount(c), id, amount, buyYes)
	if err != nil {
		RespondDomainError(c, err, "could not place bet")
		return
	}
	RespondSuccess(c, http.StatusCreated, gin.H{
		"trade":  res.Trade,
		"market": h.marketSvc.Summary(res.Market),
	})
}

// Quote godoc
// GET /api/markets/:id/quote?side=yes&amount=1000000
func (h *MarketHandler) Quote(c *gin.Context) {
	id, ok := pathID(c, "market")
	if !ok {
		return
	}
	buyYes, ok := parseSide(c.Query("side"))
	if !ok {
		RespondError(c, http.StatusBadRequest, "ERR_INVALID_SIDE", `side must be "yes" or "no"`)
		return
	}
	amount, err := ParseAmount(c.Query("amount"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", err.Error())
		return
	}

	trade, err := h.marketSvc.QuoteBet(c.Request.Context(), id, amount, buyYes)
	if err != nil {
		RespondDomainError(c, err, "could not quote bet")
		return
	}
	RespondSuccess(c, http.StatusOK, trade)
}

// GetByID godoc
// GET /api/markets/:id
func (h *MarketHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c, "market")
	if !ok {
		return
	}
	m, err := h.marketSvc.GetMarket(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err, "could not fetch market")
		return
	}
	RespondSuccess(c, http.StatusOK, marketView{Market: m, Summary: h.marketSvc.Summary(m)})
}

// ListMarkets godoc
// GET /api/markets?status=active&category=crypto&page=1&limit=20
func (h *MarketHandler) ListMarkets(c *gin.Context) {
	f, page, ok := MarketFilterFromQuery(c, 20, 100)
	if !ok {
		return
	}
	markets, total, err := h.marketSvc.ListMarkets(c.Request.Context(), f)
	if err != nil {
		RespondDomainError(c, err, "could not list markets")
		return
	}
	RespondList(c, h.marketSvc.Summaries(markets), total, page, f.Limit)
}

// MarketFilterFromQuery reads status, category and pagination. It writes a
// 400 and returns ok=false on an unknown status.
func MarketFilterFromQuery(c *gin.Context, def, maxLimit int) (f repository.MarketFilter, page int, ok bool) {
	page, limit := ParsePagination(c, def, maxLimit)
	f = repository.MarketFilter{Limit: limit, Offset: (page - 1) * limit}

	switch s := domain.MarketStatus(c.Query("status")); s {
	case "":
	case domain.StatusActive, domain.StatusResolved, domain.StatusCancelled:
		f.Status = s
	default:
		RespondError(c, http.StatusBadRequest, "ERR_INVALID_STATUS", "unknown market status")
		return f, page, false
	}
	if cat := c.Query("category"); cat != "" {
		f.Category = domain.ParseCategory(cat)
	}
	return f, page, true
}
