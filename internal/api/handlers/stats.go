package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "floodgate.io/floodgate/internal/pkg/errors"
	"floodgate.io/floodgate/internal/repository"
	"floodgate.io/floodgate/internal/stats"
)

// GetStats handles GET /api/stats: the latest aggregate snapshot, the
// throughput time series, and the most recently persisted rows.
func (s *Server) GetStats(c *gin.Context) {
	recent, err := s.store.RecentEvents(c.Request.Context(), s.recentLimit)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodePersistenceFault,
			"failed to load recent events", http.StatusInternalServerError))
		return
	}
	if recent == nil {
		recent = []repository.PersistedEvent{}
	}

	history := s.stats.History()
	if history == nil {
		history = []stats.Point{}
	}

	c.JSON(http.StatusOK, gin.H{
		"current": s.stats.Snapshot(),
		"history": history,
		"recent":  recent,
	})
}
