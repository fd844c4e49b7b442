package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oraculo/protocol/internal/api/middleware"
	"github.com/oraculo/protocol/internal/service"
)

// GovernanceHandler serves resolution proposals, votes and their settlement.
type GovernanceHandler struct {
	gov *service.GovernanceService
}

// NewGovernanceHandler creates a GovernanceHandler.
func NewGovernanceHandler(gov *service.GovernanceService) *GovernanceHandler {
	return &GovernanceHandler{gov: gov}
}

// Propose godoc
// POST /api/markets/:id/proposals [JWT]
// Body: {"outcome":true,"evidence":"https://..."}
func (h *GovernanceHandler) Propose(c *gin.Context) {
	marketID, ok := pathID(c, "market")
	if !ok {
		return
	}
	var body struct {
		Outcome  *bool  `json:"outcome" binding:"required"`
		Evidence string `json:"evidence"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	p, err := h.gov.ProposeResolution(c.Request.Context(), middleware.GetAccount(c), marketID, *body.Outcome, body.Evidence)
	if err != nil {
		RespondDomainError(c, err, "could not submit proposal")
		return
	}
	RespondSuccess(c, http.StatusCreated, p)
}

// ListByMarket godoc
// GET /api/markets/:id/proposals
func (h *GovernanceHandler) ListByMarket(c *gin.Context) {
	marketID, ok := pathID(c, "market")
	if !ok {
		return
	}
	ps, err := h.gov.ListProposals(c.Request.Context(), marketID)
	if err != nil {
		RespondDomainError(c, err, "could not list proposals")
		return
	}
	RespondSuccess(c, http.StatusOK, ps)
}

// GetByID godoc
// GET /api/proposals/:id
func (h *GovernanceHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c, "proposal")
	if !ok {
		return
	}
	p, err := h.gov.GetProposal(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err, "could not fetch proposal")
		return
	}
	RespondSuccess(c, http.StatusOK, p)
}

// Vote godoc
// POST /api/proposals/:id/votes [JWT]
// Body: {"support":true,"weight":"100"}
func (h *GovernanceHandler) Vote(c *gin.Context) {
	id, ok := pathID(c, "proposal")
	if !ok {
		return
	}
	var body struct {
		Support *bool  `json:"support" binding:"required"`
		Weight  string `json:"weight"  binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	weight, err := ParseAmount(body.Weight)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", err.Error())
		return
	}

	p, err := h.gov.Vote(c.Request.Context(), middleware.GetAccount(c), id, weight, *body.Support)
	if err != nil {
		RespondDomainError(c, err, "could not record vote")
		return
	}
	RespondSuccess(c, http.StatusCreated, p)
}

// Execute godoc
// POST /api/proposals/:id/execute [JWT]
// Anyone may execute once the voting window has closed.
func (h *GovernanceHandler) Execute(c *gin.Context) {
	id, ok := pathID(c, "proposal")
	if !ok {
		return
	}
	res, err := h.gov.ExecuteResolution(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err, "could not execute proposal")
		return
	}
	RespondSuccess(c, http.StatusOK, res)
}

// Lapse godoc
// POST /api/proposals/:id/lapse [JWT]
// Closes a proposal whose vote ended without quorum or supermajority.
func (h *GovernanceHandler) Lapse(c *gin.Context) {
	id, ok := pathID(c, "proposal")
	if !ok {
		return
	}
	res, err := h.gov.LapseProposal(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err, "could not lapse proposal")
		return
	}
	RespondSuccess(c, http.StatusOK, res)
}

// SettleStake godoc
// POST /api/proposals/:id/settle-stake [JWT]
func (h *GovernanceHandler) SettleStake(c *gin.Context) {
	id, ok := pathID(c, "proposal")
	if !ok {
		return
	}
	res, err := h.gov.SettleProposalStake(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err, "could not settle stake")
		return
	}
	RespondSuccess(c, http.StatusOK, res)
}

// Reclaim godoc
// POST /api/proposals/:id/reclaim [JWT]
func (h *GovernanceHandler) Reclaim(c *gin.Context) {
	id, ok := pathID(c, "proposal")
	if !ok {
		return
	}
	v, err := h.gov.ReclaimVote(c.Request.Context(), middleware.GetAccount(c), id)
	if err != nil {
		RespondDomainError(c, err, "could not reclaim vote")
		return
	}
	RespondSuccess(c, http.StatusOK, v)
}
