package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oraculo/protocol/internal/service"
)

// DashboardHandler serves the /admin/dashboard endpoint.
type DashboardHandler struct {
	admin   *service.AdminService
	gov     *service.GovernanceService
	started time.Time
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(admin *service.AdminService, gov *service.GovernanceService) *DashboardHandler {
	return &DashboardHandler{admin: admin, gov: gov, started: time.Now()}
}

// Dashboard godoc
// GET /admin/dashboard
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	dash, err := h.admin.Dashboard(ctx)
	if err != nil {
		respondDomainError(c, err, "could not build dashboard")
		return
	}

	// ── Governance backlog ───────────────────────────────────────────────────
	due, err := h.gov.ListDue(ctx, 500)
	if err != nil {
		respondDomainError(c, err, "could not list due proposals")
		return
	}
	unsettled, err := h.gov.ListUnsettled(ctx, 500)
	if err != nil {
		respondDomainError(c, err, "could not list unsettled proposals")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"stats":            dash.Stats,
		"protocol":         dash.Protocol,
		"treasury":         dash.Treasury,
		"due_proposals":    len(due),
		"unsettled_stakes": len(unsettled),
		"uptime_sec":       int64(time.Since(h.started).Seconds()),
		"generated_at":     time.Now().UTC(),
	})
}
