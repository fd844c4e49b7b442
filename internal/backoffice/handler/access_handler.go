package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/service"
)

// AccessHandler issues bearer tokens. Custody of the accounts themselves
// lives outside the protocol; the authority vouches for them here.
type AccessHandler struct {
	auth *service.AuthService
}

// NewAccessHandler creates an AccessHandler.
func NewAccessHandler(auth *service.AuthService) *AccessHandler {
	return &AccessHandler{auth: auth}
}

// IssueToken godoc
// POST /admin/tokens
// Body: {"account":"bob"}
func (h *AccessHandler) IssueToken(c *gin.Context) {
	var body struct {
		Account string `json:"account" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	tok, err := h.auth.IssueToken(domain.Account(body.Account))
	if err != nil {
		respondDomainError(c, err, "could not issue token")
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{
		"account":      body.Account,
		"access_token": tok,
		"token_type":   "Bearer",
	})
}
