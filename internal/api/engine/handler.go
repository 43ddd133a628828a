// Package engine provides the REST API for the progression and reward
// engine: missions, drill slots, the coin/XP ledger, streaks, achievements
// and leaderboards.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/praxislms/progression-engine/internal/models"
	"github.com/praxislms/progression-engine/internal/progression"
	"github.com/praxislms/progression-engine/internal/service/drills"
	"github.com/praxislms/progression-engine/internal/service/leaderboard"
	"github.com/praxislms/progression-engine/internal/service/ledger"
	"github.com/praxislms/progression-engine/internal/service/missions"
	"github.com/praxislms/progression-engine/internal/service/streaks"
	"github.com/praxislms/progression-engine/pkg/logger"
)

// MissionService interface for mission operations.
type MissionService interface {
	GetActiveMissions(ctx context.Context, userID string) ([]models.Mission, error)
	RecordProgress(ctx context.Context, userID string, activity progression.ActivityType, amount int) error
	ClaimMission(ctx context.Context, missionID uint, userID string) (*models.Mission, error)
}

// DrillService interface for drill slot operations.
type DrillService interface {
	GetSlots(ctx context.Context, userID string) ([]drills.SlotView, error)
	StartDrill(ctx context.Context, userID string, slotIndex int, drillType string) (*models.DrillSlot, error)
	ClaimDrillReward(ctx context.Context, userID string, slotIndex int) (*models.LedgerBalance, error)
}

// LedgerService interface for balance reads.
type LedgerService interface {
	GetBalance(ctx context.Context, userID string) (*models.LedgerBalance, error)
}

// StreakService interface for streak and achievement operations.
type StreakService interface {
	GetStreak(ctx context.Context, userID string) (*models.StreakRecord, error)
	GetAchievements(ctx context.Context, userID string) ([]streaks.AchievementView, error)
	RecordActivityEvent(ctx context.Context, userID string, activity progression.ActivityType, amount int, at time.Time) error
}

// LeaderboardService interface for ranked balance listings.
type LeaderboardService interface {
	Top(ctx context.Context, metric string, limit int) ([]leaderboard.Entry, error)
}

// HealthChecker reports datastore connectivity.
type HealthChecker interface {
	Health() error
}

// Handler handles progression engine API requests.
type Handler struct {
	missionService     MissionService
	drillService       DrillService
	ledgerService      LedgerService
	streakService      StreakService
	leaderboardService LeaderboardService
	health             HealthChecker
	log                *logger.Logger
}

// NewHandler creates a new engine handler.
func NewHandler(
	missionService *missions.Service,
	drillService *drills.Service,
	ledgerService *ledger.Service,
	streakService *streaks.Service,
	leaderboardService *leaderboard.Service,
	health HealthChecker,
	log *logger.Logger,
) *Handler {
	return &Handler{
		missionService:     missionService,
		drillService:       drillService,
		ledgerService:      ledgerService,
		streakService:      streakService,
		leaderboardService: leaderboardService,
		health:             health,
		log:                log,
	}
}

// NewHandlerWithInterfaces creates a new engine handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	missionService MissionService,
	drillService DrillService,
	ledgerService LedgerService,
	streakService StreakService,
	leaderboardService LeaderboardService,
	health HealthChecker,
	log *logger.Logger,
) *Handler {
	return &Handler{
		missionService:     missionService,
		drillService:       drillService,
		ledgerService:      ledgerService,
		streakService:      streakService,
		leaderboardService: leaderboardService,
		health:             health,
		log:                log,
	}
}

// RegisterRoutes attaches all engine endpoints to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.GetHealth)

	v1 := router.Group("/api/v1")
	{
		users := v1.Group("/users/:id")
		{
			users.GET("/missions", h.GetMissions)
			users.POST("/missions/:missionID/claim", h.ClaimMission)
			users.GET("/drills", h.GetDrillSlots)
			users.POST("/drills/:slot/start", h.StartDrill)
			users.POST("/drills/:slot/claim", h.ClaimDrillReward)
			users.GET("/balance", h.GetBalance)
			users.GET("/streak", h.GetStreak)
			users.GET("/achievements", h.GetAchievements)
			users.POST("/activity", h.RecordActivity)
		}
		v1.GET("/leaderboard", h.GetLeaderboard)
	}
}

// GetMissions returns the user's current mission set, generating a fresh one
// when none exists for today.
// GET /api/v1/users/:id/missions.
func (h *Handler) GetMissions(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	missionList, err := h.missionService.GetActiveMissions(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to get missions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"missions":     missionList,
		"generated_at": time.Now().UTC(),
	})
}

// ClaimMission pays out a completed mission's reward.
// POST /api/v1/users/:id/missions/:missionID/claim.
func (h *Handler) ClaimMission(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	missionID, err := strconv.ParseUint(c.Param("missionID"), 10, 32)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid mission ID: %s", c.Param("missionID")))
		return
	}

	mission, err := h.missionService.ClaimMission(c.Request.Context(), uint(missionID), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to claim mission")
		return
	}

	h.log.Info().
		Str("user_id", userID).
		Uint64("mission_id", missionID).
		Int64("coins", mission.RewardCoins).
		Int64("xp", mission.RewardXP).
		Msg("Mission claimed")

	c.JSON(http.StatusOK, gin.H{
		"mission":      mission,
		"reward_coins": mission.RewardCoins,
		"reward_xp":    mission.RewardXP,
	})
}

// GetDrillSlots returns the 9-slot drill grid with computed statuses.
// GET /api/v1/users/:id/drills.
func (h *Handler) GetDrillSlots(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	slots, err := h.drillService.GetSlots(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to get drill slots")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"slots":   slots,
	})
}

type startDrillRequest struct {
	DrillType string `json:"drill_type" binding:"required"`
}

// StartDrill places a drill into a slot.
// POST /api/v1/users/:id/drills/:slot/start.
func (h *Handler) StartDrill(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	slotIndex, err := h.parseSlotIndex(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req startDrillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "drill_type is required")
		return
	}

	slot, err := h.drillService.StartDrill(c.Request.Context(), userID, slotIndex, req.DrillType)
	if err != nil {
		h.serviceError(c, err, "Failed to start drill")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"drill": slot})
}

// ClaimDrillReward collects a matured drill's reward and frees the slot.
// POST /api/v1/users/:id/drills/:slot/claim.
func (h *Handler) ClaimDrillReward(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	slotIndex, err := h.parseSlotIndex(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	balance, err := h.drillService.ClaimDrillReward(c.Request.Context(), userID, slotIndex)
	if err != nil {
		h.serviceError(c, err, "Failed to claim drill reward")
		return
	}

	resp := gin.H{
		"user_id":    userID,
		"slot_index": slotIndex,
	}
	// A nil balance means the credit was queued for retry; the reward is
	// committed either way.
	if balance != nil {
		resp["balance"] = balance
	}
	c.JSON(http.StatusOK, resp)
}

// GetBalance returns the user's coin and XP balance.
// GET /api/v1/users/:id/balance.
func (h *Handler) GetBalance(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	balance, err := h.ledgerService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to get balance")
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// GetStreak returns the user's activity streak.
// GET /api/v1/users/:id/streak.
func (h *Handler) GetStreak(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.streakService.GetStreak(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to get streak")
		return
	}

	c.JSON(http.StatusOK, gin.H{"streak": record})
}

// GetAchievements returns every achievement with the user's progress.
// GET /api/v1/users/:id/achievements.
func (h *Handler) GetAchievements(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	views, err := h.streakService.GetAchievements(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to get achievements")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"achievements": views,
	})
}

type activityRequest struct {
	Type   string `json:"type" binding:"required"`
	Amount int    `json:"amount"`
}

// RecordActivity ingests one activity event from the site: it advances
// matching missions, the daily streak, cumulative counters and achievements.
// POST /api/v1/users/:id/activity.
func (h *Handler) RecordActivity(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "type is required")
		return
	}
	if req.Amount == 0 {
		req.Amount = 1
	}

	activity := progression.ActivityType(req.Type)
	ctx := c.Request.Context()

	if err := h.missionService.RecordProgress(ctx, userID, activity, req.Amount); err != nil {
		h.serviceError(c, err, "Failed to record mission progress")
		return
	}
	if err := h.streakService.RecordActivityEvent(ctx, userID, activity, req.Amount, time.Now()); err != nil {
		h.serviceError(c, err, "Failed to record activity")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"user_id": userID,
		"type":    req.Type,
		"amount":  req.Amount,
	})
}

// GetLeaderboard returns the top balances ranked by coins or XP.
// GET /api/v1/leaderboard?metric=coins&limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	metric := c.DefaultQuery("metric", leaderboard.MetricCoins)
	limit, err := h.parseLimit(c, leaderboard.DefaultLimit)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboardService.Top(c.Request.Context(), metric, limit)
	if err != nil {
		h.serviceError(c, err, "Failed to get leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":  entries,
		"metric":       metric,
		"generated_at": time.Now().UTC(),
	})
}

// GetHealth reports service and datastore health.
// GET /health.
func (h *Handler) GetHealth(c *gin.Context) {
	if h.health != nil {
		if err := h.health.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Helper functions

// parseUserID extracts the user ID from the URL parameter.
func (h *Handler) parseUserID(c *gin.Context) (string, error) {
	id := c.Param("id")
	if id == "" {
		return "", fmt.Errorf("user ID is required")
	}
	return id, nil
}

// parseSlotIndex extracts and validates the slot index from the URL parameter.
func (h *Handler) parseSlotIndex(c *gin.Context) (int, error) {
	slotStr := c.Param("slot")
	slot, err := strconv.Atoi(slotStr)
	if err != nil {
		return 0, fmt.Errorf("invalid slot index: %s", slotStr)
	}
	return slot, nil
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}
	if limit > leaderboard.MaxLimit {
		return 0, fmt.Errorf("limit cannot exceed %d", leaderboard.MaxLimit)
	}
	return limit, nil
}

// serviceError maps a service error to an HTTP response.
func (h *Handler) serviceError(c *gin.Context, err error, logMsg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, progression.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, progression.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, progression.ErrAlreadyClaimed),
		errors.Is(err, progression.ErrSlotOccupied),
		errors.Is(err, progression.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, progression.ErrIncomplete),
		errors.Is(err, progression.ErrNotFinished):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(logMsg)
		h.errorResponse(c, status, logMsg)
		return
	}

	h.log.Debug().Err(err).Str("path", c.FullPath()).Msg(logMsg)
	h.errorResponse(c, status, err.Error())
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
