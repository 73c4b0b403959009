package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"floodgate.io/floodgate/internal/domain"
	apperrors "floodgate.io/floodgate/internal/pkg/errors"
	"floodgate.io/floodgate/internal/pkg/logger"
)

// PostIngest handles POST /ingest: validate, rate-check, enqueue.
//
// 202 means "validated, admitted, and queued" — the response does not wait
// for the entry to reach the log. When the limiter's transport is down the
// request fails closed with 500 rather than bypassing the limit.
func (s *Server) PostIngest(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "unreadable request body"))
		return
	}

	now := time.Now().UTC()
	ev, appErr := domain.ParseEvent(body, now)
	if appErr != nil {
		_ = c.Error(appErr)
		return
	}

	eventID := uuid.NewString()

	admitted, err := s.limiter.Admit(c.Request.Context(), ev.UserID, now, eventID)
	if err != nil {
		_ = c.Error(apperrors.ErrTransportUnavailable(err))
		return
	}
	if !admitted {
		s.recordRejection()
		_ = c.Error(apperrors.ErrRateLimitExceeded())
		return
	}

	ev.EventID = eventID
	payload, err := ev.Encode()
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInternal, "encode event", http.StatusInternalServerError))
		return
	}

	s.queue.Add(eventID, payload)

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Event accepted",
		"event_id": eventID,
	})
}

// recordRejection pushes the 429 outcome onto the side channel without
// blocking the response.
func (s *Server) recordRejection() {
	if s.rejections == nil || s.pools == nil {
		return
	}
	err := s.pools.SubmitDetached("general", func(ctx context.Context) {
		if err := s.rejections.Incr(ctx); err != nil {
			logger.Debug("Rejection counter increment failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Debug("Rejection recording submission failed", zap.Error(err))
	}
}
