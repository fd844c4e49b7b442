package handler

import (
	"github.com/gin-gonic/gin"
	apihandler "github.com/oraculo/protocol/internal/api/handler"
)

// ──────────────────────────────────────────────────────────────────────────────
// Admin response helpers (same envelope as the public API)
// ──────────────────────────────────────────────────────────────────────────────

var (
	respondSuccess     = apihandler.RespondSuccess
	respondError       = apihandler.RespondError
	respondList        = apihandler.RespondList
	respondDomainError = apihandler.RespondDomainError
)

// adminPagination reads page/limit query params with larger defaults for
// admin views.
func adminPagination(c *gin.Context) (page, limit int) {
	return apihandler.ParsePagination(c, 50, 500)
}
