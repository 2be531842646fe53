package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"trendline-trading-bot/internal/queue"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// enqueue validates nothing beyond the JSON shape; the task handler owns
// domain validation. Returns 202 with the task id.
func (s *Server) enqueue(c *gin.Context, lane queue.Lane, kind string, payload interface{}) {
	id, err := s.queue.Enqueue(c.Request.Context(), lane, kind, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("enqueue failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue task"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id})
}

func (s *Server) handleUpsertCandle(c *gin.Context) {
	var req queue.CandleUpsertTask
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Instrument == "" || req.Timeframe == "" || req.Timestamp == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instrument, timeframe and timestamp are required"})
		return
	}
	if _, err := time.Parse(time.RFC3339, req.Timestamp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timestamp must be RFC3339"})
		return
	}
	s.enqueue(c, queue.LaneNormal, queue.TaskCandleUpsert, req)
}

func (s *Server) handleDetect(c *gin.Context) {
	var req queue.DetectTask
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" || req.Instrument == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and instrument are required"})
		return
	}
	s.enqueue(c, queue.LaneNormal, queue.TaskDetect, req)
}

func (s *Server) handleRecalculate(c *gin.Context) {
	var req queue.DetectTask
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" || req.Instrument == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and instrument are required"})
		return
	}
	s.enqueue(c, queue.LaneNormal, queue.TaskRecalculate, req)
}

func (s *Server) handleEvaluateAlerts(c *gin.Context) {
	var req queue.EvaluateAlertsTask
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" || req.Instrument == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and instrument are required"})
		return
	}
	s.enqueue(c, queue.LaneLow, queue.TaskEvaluateAlerts, req)
}

func (s *Server) handleCreateSignal(c *gin.Context) {
	var req queue.CreateSignalTask
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" || req.Instrument == "" || req.Direction == "" || req.EntryPrice == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id, instrument, direction and entry_price are required"})
		return
	}
	s.enqueue(c, queue.LaneHigh, queue.TaskCreateSignal, req)
}

func (s *Server) handlePriceUpdate(c *gin.Context) {
	var req queue.PriceUpdateTask
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" || req.Instrument == "" || req.Price <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id, instrument and a positive price are required"})
		return
	}
	s.enqueue(c, queue.LaneNormal, queue.TaskPriceUpdate, req)
}

func (s *Server) handleReconcile(c *gin.Context) {
	var req queue.ReconcileTask
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	s.enqueue(c, queue.LaneHigh, queue.TaskReconcile, req)
}

func (s *Server) handleFlatten(c *gin.Context) {
	var req queue.FlattenTask
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	s.enqueue(c, queue.LaneHigh, queue.TaskFlatten, req)
}

func (s *Server) handleListTrendlines(c *gin.Context) {
	userID := c.Query("user_id")
	instrument := c.Query("instrument")
	if userID == "" || instrument == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and instrument are required"})
		return
	}

	lines, err := s.trendlines.LiveTrendlines(c.Request.Context(), userID, instrument)
	if err != nil {
		s.logger.Error().Err(err).Msg("list trendlines failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trendlines"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trendlines": lines})
}

func (s *Server) handleListAlerts(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	alerts, err := s.alerts.RecentAlerts(c.Request.Context(), userID, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list alerts failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) handleListPositions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	positions, err := s.positions.OpenPositions(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("list positions failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load positions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) handleBreakerState(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	state, losses, err := s.breaker.State(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("breaker state failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load breaker state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state, "consecutive_losses": losses})
}

func (s *Server) handleBreakerReset(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	if err := s.breaker.Reset(c.Request.Context(), req.UserID); err != nil {
		s.logger.Error().Err(err).Msg("breaker reset failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset breaker"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) handleDeadTasks(c *gin.Context) {
	dead, err := s.queue.DeadTasks(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("dead tasks failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dead tasks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": dead, "count": len(dead)})
}
