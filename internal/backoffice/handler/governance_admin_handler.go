package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oraculo/protocol/internal/service"
)

// Passes is the part of the scheduler an operator can trigger by hand.
type Passes interface {
	ExecuteDue(ctx context.Context) (int, error)
	SettleStakes(ctx context.Context) (int, error)
}

// GovernanceAdminHandler serves /admin/proposals endpoints.
type GovernanceAdminHandler struct {
	gov    *service.GovernanceService
	passes Passes
}

// NewGovernanceAdminHandler creates a GovernanceAdminHandler.
func NewGovernanceAdminHandler(gov *service.GovernanceService, passes Passes) *GovernanceAdminHandler {
	return &GovernanceAdminHandler{gov: gov, passes: passes}
}

// Due godoc
// GET /admin/proposals/due?limit=50
// Active proposals whose voting window has closed.
func (h *GovernanceAdminHandler) Due(c *gin.Context) {
	_, limit := adminPagination(c)
	ps, err := h.gov.ListDue(c.Request.Context(), limit)
	if err != nil {
		respondDomainError(c, err, "could not list due proposals")
		return
	}
	respondSuccess(c, http.StatusOK, ps)
}

// Unsettled godoc
// GET /admin/proposals/unsettled?limit=50
func (h *GovernanceAdminHandler) Unsettled(c *gin.Context) {
	_, limit := adminPagination(c)
	ps, err := h.gov.ListUnsettled(c.Request.Context(), limit)
	if err != nil {
		respondDomainError(c, err, "could not list unsettled proposals")
		return
	}
	respondSuccess(c, http.StatusOK, ps)
}

// ExecuteDue godoc
// POST /admin/proposals/execute-due
// Runs one resolution pass now instead of waiting for the scheduler tick.
func (h *GovernanceAdminHandler) ExecuteDue(c *gin.Context) {
	n, err := h.passes.ExecuteDue(c.Request.Context())
	if err != nil {
		respondDomainError(c, err, "execute pass failed")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"closed": n})
}

// SettleStakes godoc
// POST /admin/proposals/settle-stakes
func (h *GovernanceAdminHandler) SettleStakes(c *gin.Context) {
	n, err := h.passes.SettleStakes(c.Request.Context())
	if err != nil {
		respondDomainError(c, err, "settle pass failed")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"settled": n})
}
