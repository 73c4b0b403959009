package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetHealth handles GET /health. Unconditional OK: liveness only, no
// dependency checks.
func (s *Server) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
