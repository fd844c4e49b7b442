package backoffice

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oraculo/protocol/internal/api/middleware"
	"github.com/oraculo/protocol/internal/backoffice/handler"
	"github.com/oraculo/protocol/internal/config"
	"github.com/oraculo/protocol/internal/service"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	AuthSvc       *service.AuthService
	AdminSvc      *service.AdminService
	MarketSvc     *service.MarketService
	GovernanceSvc *service.GovernanceService
	SettlementSvc *service.SettlementService
	Passes        handler.Passes
	Cfg           *config.Config
}

// SetupBackofficeRouter creates the admin Gin engine. Every /admin route
// requires a token whose subject is the protocol authority.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(ipAllowlistMiddleware(deps.Cfg.Server.BackofficeAllowedIPs))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	dashH := handler.NewDashboardHandler(deps.AdminSvc, deps.GovernanceSvc)
	marketH := handler.NewMarketAdminHandler(deps.MarketSvc, deps.GovernanceSvc)
	govH := handler.NewGovernanceAdminHandler(deps.GovernanceSvc, deps.Passes)
	financeH := handler.NewFinanceHandler(deps.AdminSvc, deps.SettlementSvc, deps.Cfg.Protocol)
	accessH := handler.NewAccessHandler(deps.AuthSvc)

	admin := r.Group("/admin")
	admin.Use(
		middleware.JWTMiddleware(deps.AuthSvc),
		middleware.RoleMiddleware(service.RoleAuthority),
		middleware.AccountMiddleware(deps.Cfg.Protocol.Authority),
	)
	{
		admin.GET("/dashboard", dashH.Dashboard)
		admin.POST("/faucet", financeH.Faucet)
		admin.GET("/accounts/:account/balances", financeH.Balances)
		admin.POST("/tokens", accessH.IssueToken)

		// Markets
		m := admin.Group("/markets")
		{
			m.GET("", marketH.List)
			m.GET("/:id", marketH.Detail)
		}

		// Governance
		p := admin.Group("/proposals")
		{
			p.GET("/due", govH.Due)
			p.GET("/unsettled", govH.Unsettled)
			p.POST("/execute-due", govH.ExecuteDue)
			p.POST("/settle-stakes", govH.SettleStakes)
		}
	}

	return r
}

// ── IP allow-list middleware ──────────────────────────────────────────────────

// ipAllowlistMiddleware blocks requests from IPs not in the allowlist.
// allowedIPs is a comma-separated string; empty means allow all.
func ipAllowlistMiddleware(allowedIPs string) gin.HandlerFunc {
	if strings.TrimSpace(allowedIPs) == "" {
		return func(c *gin.Context) { c.Next() } // dev mode: no restriction
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(allowedIPs, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		if !allowed[c.ClientIP()] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "access denied: your IP is not allow-listed",
				"code":    "ERR_IP_BLOCKED",
			})
			return
		}
		c.Next()
	}
}
