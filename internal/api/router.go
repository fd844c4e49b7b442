package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oraculo/protocol/internal/api/handler"
	"github.com/oraculo/protocol/internal/api/middleware"
	"github.com/oraculo/protocol/internal/config"
	"github.com/oraculo/protocol/internal/service"
	"github.com/oraculo/protocol/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	AuthSvc       *service.AuthService
	MarketSvc     *service.MarketService
	GovernanceSvc *service.GovernanceService
	SettlementSvc *service.SettlementService
	Hub           *ws.Hub
	Cfg           *config.Config
}

// SetupRouter creates and configures the public Gin engine with all routes,
// middleware, CORS and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	marketH := handler.NewMarketHandler(deps.MarketSvc)
	govH := handler.NewGovernanceHandler(deps.GovernanceSvc)
	settleH := handler.NewSettlementHandler(deps.SettlementSvc)

	// ── Middleware ───────────────────────────────────────────────────────────
	jwtMW := middleware.JWTMiddleware(deps.AuthSvc)
	writeRL := middleware.RateLimitMiddleware(deps.Cfg.Server.RateLimitPerMinute)

	api := r.Group("/api")
	{
		api.GET("/config", func(c *gin.Context) {
			handler.RespondSuccess(c, http.StatusOK, deps.Cfg.Protocol)
		})

		// ── Public reads ─────────────────────────────────────────────────────
		api.GET("/markets", marketH.ListMarkets)
		api.GET("/markets/:id", marketH.GetByID)
		api.GET("/markets/:id/quote", marketH.Quote)
		api.GET("/markets/:id/proposals", govH.ListByMarket)
		api.GET("/proposals/:id", govH.GetByID)

		// ── Authenticated writes ─────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW, writeRL)
		{
			authed.GET("/me/balances", settleH.Balances)

			authed.POST("/markets", marketH.Create)
			authed.POST("/markets/:id/bets", marketH.PlaceBet)
			authed.POST("/markets/:id/proposals", govH.Propose)
			authed.POST("/markets/:id/claim", settleH.Claim)

			authed.POST("/proposals/:id/votes", govH.Vote)
			authed.POST("/proposals/:id/execute", govH.Execute)
			authed.POST("/proposals/:id/lapse", govH.Lapse)
			authed.POST("/proposals/:id/settle-stake", govH.SettleStake)
			authed.POST("/proposals/:id/reclaim", govH.Reclaim)
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets CORS headers.
// Outside production all origins are allowed; in production only the
// configured ones.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
