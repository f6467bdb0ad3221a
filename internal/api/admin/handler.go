// Package admin provides the REST API used by list moderators to edit the
// level lists and process records. Public reads share the same handler.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/internal/service/engine"
	"github.com/aimd54/levellist/pkg/apperror"
	"github.com/aimd54/levellist/pkg/logger"
)

// ActorHeader names the moderator performing a request.
const ActorHeader = "X-Admin-User"

const defaultActor = "admin"

// Engine is the set of engine operations the API exposes.
type Engine interface {
	AddLevel(ctx context.Context, list models.ListType, rank int, details models.LevelDetails) (uint, error)
	MoveLevel(ctx context.Context, id uint, list models.ListType, rank int) error
	RelistToLegacy(ctx context.Context, id uint) error
	DeleteLevel(ctx context.Context, id uint) error
	EditLevel(ctx context.Context, id uint, details models.LevelDetails) error
	GetOrderedList(ctx context.Context, list models.ListType) ([]models.Level, error)
	GetLevel(ctx context.Context, id uint) (*models.Level, error)
	LevelHistory(ctx context.Context, id uint, limit int) ([]models.LevelHistory, error)
	RecentHistory(ctx context.Context, limit int) ([]models.LevelHistory, error)

	SubmitRecord(ctx context.Context, userID, levelID uint, progress int, videoRef string) (uint, error)
	ApproveRecord(ctx context.Context, id uint, approver string) error
	RejectRecord(ctx context.Context, id uint, reason, rejecter string) error
	DeleteRecord(ctx context.Context, id uint) error
	PendingRecords(ctx context.Context, limit int) ([]models.Record, error)
	GetRecord(ctx context.Context, id uint) (*models.Record, error)
	UserRecords(ctx context.Context, userID uint) ([]models.Record, error)

	RegisterUser(ctx context.Context, username string) (*models.User, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	Leaderboard(ctx context.Context, limit int) ([]models.User, error)
	RecomputeUser(ctx context.Context, userID uint) (float64, error)
	RecomputeAllUsers(ctx context.Context) (int, error)
	VerifyLists(ctx context.Context) error
}

// Handler handles level list API requests.
type Handler struct {
	engine     Engine
	adminToken string
	log        *logger.Logger
}

// NewHandler creates a new handler. An empty adminToken leaves the write
// endpoints unauthenticated.
func NewHandler(e Engine, adminToken string, log *logger.Logger) *Handler {
	return &Handler{
		engine:     e,
		adminToken: adminToken,
		log:        log.Component("admin_api"),
	}
}

// RegisterRoutes mounts the API under /api/v1.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	api.GET("/lists/:list", h.GetList)
	api.GET("/levels/:id", h.GetLevel)
	api.GET("/levels/:id/history", h.GetLevelHistory)
	api.GET("/history", h.GetRecentHistory)
	api.GET("/users/:id", h.GetUser)
	api.GET("/users/:id/records", h.GetUserRecords)
	api.GET("/leaderboard", h.GetLeaderboard)
	api.POST("/records", h.SubmitRecord)

	admin := api.Group("", h.RequireAdmin())
	admin.POST("/levels", h.AddLevel)
	admin.PUT("/levels/:id", h.EditLevel)
	admin.PUT("/levels/:id/position", h.MoveLevel)
	admin.POST("/levels/:id/relist", h.RelistLevel)
	admin.DELETE("/levels/:id", h.DeleteLevel)
	admin.GET("/records/pending", h.GetPendingRecords)
	admin.GET("/records/:id", h.GetRecord)
	admin.POST("/records/:id/approve", h.ApproveRecord)
	admin.POST("/records/:id/reject", h.RejectRecord)
	admin.DELETE("/records/:id", h.DeleteRecord)
	admin.POST("/users", h.RegisterUser)
	admin.POST("/users/:id/recompute", h.RecomputeUser)
	admin.POST("/maintenance/recompute", h.RecomputeAll)
	admin.GET("/maintenance/verify", h.VerifyLists)
}

// RequireAdmin checks the bearer token and attaches the moderator name from
// ActorHeader to the request context.
func (h *Handler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminToken != "" {
			token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
				h.errorResponse(c, http.StatusUnauthorized, "authorization required")
				c.Abort()
				return
			}
		}

		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actor == "" {
			actor = defaultActor
		}
		c.Request = c.Request.WithContext(engine.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// GetList returns one list in rank order.
// GET /api/v1/lists/:list.
func (h *Handler) GetList(c *gin.Context) {
	list, err := models.ParseList(c.Param("list"))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	levels, err := h.engine.GetOrderedList(c.Request.Context(), list)
	if err != nil {
		h.handleError(c, err, "Failed to retrieve list")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"list":         list,
		"levels":       levels,
		"total_levels": len(levels),
		"generated_at": time.Now().UTC(),
	})
}

// GetLevel returns one level.
// GET /api/v1/levels/:id.
func (h *Handler) GetLevel(c *gin.Context) {
	id, err := h.parseID(c, "level")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	level, err := h.engine.GetLevel(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err, "Failed to retrieve level")
		return
	}

	c.JSON(http.StatusOK, gin.H{"level": level})
}

// GetLevelHistory returns the placement history of a level.
// GET /api/v1/levels/:id/history?limit=50.
func (h *Handler) GetLevelHistory(c *gin.Context) {
	id, err := h.parseID(c, "level")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := h.parseLimit(c, 50)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	history, err := h.engine.LevelHistory(c.Request.Context(), id, limit)
	if err != nil {
		h.handleError(c, err, "Failed to retrieve level history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"level_id": id,
		"history":  history,
	})
}

// GetRecentHistory returns the latest list changes.
// GET /api/v1/history?limit=50.
func (h *Handler) GetRecentHistory(c *gin.Context) {
	limit, err := h.parseLimit(c, 50)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	history, err := h.engine.RecentHistory(c.Request.Context(), limit)
	if err != nil {
		h.handleError(c, err, "Failed to retrieve history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history":      history,
		"generated_at": time.Now().UTC(),
	})
}

type addLevelRequest struct {
	List string `json:"list"`
	Rank int    `json:"rank"`
	models.LevelDetails
}

// AddLevel inserts a level.
// POST /api/v1/levels.
func (h *Handler) AddLevel(c *gin.Context) {
	var req addLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	list, err := models.ParseList(req.List)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.engine.AddLevel(c.Request.Context(), list, req.Rank, req.LevelDetails)
	if err != nil {
		h.handleError(c, err, "Failed to add level")
		return
	}

	h.log.Info().
		Uint("level_id", id).
		Str("actor", engine.ActorFrom(c.Request.Context())).
		Msg("Level added via API")

	c.JSON(http.StatusCreated, gin.H{"level_id": id})
}

// EditLevel replaces a level's metadata.
// PUT /api/v1/levels/:id.
func (h *Handler) EditLevel(c *gin.Context) {
	id, err := h.parseID(c, "level")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	var details models.LevelDetails
	if err := c.ShouldBindJSON(&details); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.EditLevel(c.Request.Context(), id, details); err != nil {
		h.handleError(c, err, "Failed to edit level")
		return
	}

	c.JSON(http.StatusOK, gin.H{"level_id": id})
}

type moveLevelRequest struct {
	List string `json:"list"`
	Rank int    `json:"rank"`
}

// MoveLevel changes the placement of a level.
// PUT /api/v1/levels/:id/position.
func (h *Handler) MoveLevel(c *gin.Context) {
	id, err := h.parseID(c, "level")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	var req moveLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	list, err := models.ParseList(req.List)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.MoveLevel(c.Request.Context(), id, list, req.Rank); err != nil {
		h.handleError(c, err, "Failed to move level")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"level_id": id,
		"list":     list,
		"rank":     req.Rank,
	})
}

// RelistLevel moves a level to the end of the legacy list.
// POST /api/v1/levels/:id/relist.
func (h *Handler) RelistLevel(c *gin.Context) {
	id, err := h.parseID(c, "level")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.RelistToLegacy(c.Request.Context(), id); err != nil {
		h.handleError(c, err, "Failed to relist level")
		return
	}

	c.JSON(http.StatusOK, gin.H{"level_id": id, "list": models.ListLegacy})
}

// DeleteLevel removes a level and its records.
// DELETE /api/v1/levels/:id.
func (h *Handler) DeleteLevel(c *gin.Context) {
	id, err := h.parseID(c, "level")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.DeleteLevel(c.Request.Context(), id); err != nil {
		h.handleError(c, err, "Failed to delete level")
		return
	}

	c.Status(http.StatusNoContent)
}

type submitRecordRequest struct {
	UserID   uint   `json:"user_id"`
	LevelID  uint   `json:"level_id"`
	Progress int    `json:"progress"`
	VideoRef string `json:"video_ref"`
}

// SubmitRecord creates a pending record.
// POST /api/v1/records.
func (h *Handler) SubmitRecord(c *gin.Context) {
	var req submitRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.engine.SubmitRecord(c.Request.Context(), req.UserID, req.LevelID, req.Progress, req.VideoRef)
	if err != nil {
		h.handleError(c, err, "Failed to submit record")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"record_id": id,
		"status":    models.RecordPending,
	})
}

// GetPendingRecords returns the moderation queue.
// GET /api/v1/records/pending?limit=50.
func (h *Handler) GetPendingRecords(c *gin.Context) {
	limit, err := h.parseLimit(c, 50)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.engine.PendingRecords(c.Request.Context(), limit)
	if err != nil {
		h.handleError(c, err, "Failed to retrieve pending records")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records":       records,
		"total_records": len(records),
	})
}

// GetRecord returns one record.
// GET /api/v1/records/:id.
func (h *Handler) GetRecord(c *gin.Context) {
	id, err := h.parseID(c, "record")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.engine.GetRecord(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err, "Failed to retrieve record")
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": record})
}

// ApproveRecord approves a pending record.
// POST /api/v1/records/:id/approve.
func (h *Handler) ApproveRecord(c *gin.Context) {
	id, err := h.parseID(c, "record")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.ApproveRecord(c.Request.Context(), id, engine.ActorFrom(c.Request.Context())); err != nil {
		h.handleError(c, err, "Failed to approve record")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record_id": id,
		"status":    models.RecordApproved,
	})
}

type rejectRecordRequest struct {
	Reason string `json:"reason"`
}

// RejectRecord rejects a pending record.
// POST /api/v1/records/:id/reject.
func (h *Handler) RejectRecord(c *gin.Context) {
	id, err := h.parseID(c, "record")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	var req rejectRecordRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.errorResponse(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.engine.RejectRecord(c.Request.Context(), id, req.Reason, engine.ActorFrom(c.Request.Context())); err != nil {
		h.handleError(c, err, "Failed to reject record")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record_id": id,
		"status":    models.RecordRejected,
	})
}

// DeleteRecord removes a record.
// DELETE /api/v1/records/:id.
func (h *Handler) DeleteRecord(c *gin.Context) {
	id, err := h.parseID(c, "record")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.DeleteRecord(c.Request.Context(), id); err != nil {
		h.handleError(c, err, "Failed to delete record")
		return
	}

	c.Status(http.StatusNoContent)
}

type registerUserRequest struct {
	Username string `json:"username"`
}

// RegisterUser creates a user, or returns the existing one.
// POST /api/v1/users.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.engine.RegisterUser(c.Request.Context(), req.Username)
	if err != nil {
		h.handleError(c, err, "Failed to register user")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// GetUser returns one user with their point total.
// GET /api/v1/users/:id.
func (h *Handler) GetUser(c *gin.Context) {
	id, err := h.parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.engine.GetUser(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err, "Failed to retrieve user")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// GetUserRecords returns every record of a user.
// GET /api/v1/users/:id/records.
func (h *Handler) GetUserRecords(c *gin.Context) {
	id, err := h.parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.engine.UserRecords(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err, "Failed to retrieve user records")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":       id,
		"records":       records,
		"total_records": len(records),
	})
}

// GetLeaderboard returns users by points.
// GET /api/v1/leaderboard?limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	users, err := h.engine.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		h.handleError(c, err, "Failed to retrieve leaderboard")
		return
	}

	type entry struct {
		Rank     int     `json:"rank"`
		UserID   uint    `json:"user_id"`
		Username string  `json:"username"`
		Points   float64 `json:"points"`
	}
	entries := make([]entry, len(users))
	for i, u := range users {
		entries[i] = entry{Rank: i + 1, UserID: u.ID, Username: u.Username, Points: u.Points}
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// RecomputeUser rewrites one user's total.
// POST /api/v1/users/:id/recompute.
func (h *Handler) RecomputeUser(c *gin.Context) {
	id, err := h.parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	total, err := h.engine.RecomputeUser(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err, "Failed to recompute user")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": id,
		"points":  total,
	})
}

// RecomputeAll rewrites every user's total.
// POST /api/v1/maintenance/recompute.
func (h *Handler) RecomputeAll(c *gin.Context) {
	count, err := h.engine.RecomputeAllUsers(c.Request.Context())
	if err != nil {
		h.handleError(c, err, "Failed to recompute users")
		return
	}

	h.log.Info().
		Int("users", count).
		Str("actor", engine.ActorFrom(c.Request.Context())).
		Msg("Full recompute requested")

	c.JSON(http.StatusOK, gin.H{"users": count})
}

// VerifyLists checks list consistency.
// GET /api/v1/maintenance/verify.
func (h *Handler) VerifyLists(c *gin.Context) {
	err := h.engine.VerifyLists(c.Request.Context())
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"consistent": true})
		return
	}
	if !errors.Is(err, apperror.ErrListInconsistent) {
		h.handleError(c, err, "Failed to verify lists")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"consistent": false,
		"problems":   strings.Split(err.Error(), "\n"),
	})
}

// parseID extracts and validates the numeric ID URL parameter.
func (h *Handler) parseID(c *gin.Context, kind string) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s ID: %s", kind, idStr)
	}
	return uint(id), nil
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

	if limit > 1000 {
		return 0, fmt.Errorf("limit cannot exceed 1000")
	}

	return limit, nil
}

// handleError responds with the status mapped from err. Server errors are
// logged and answered with fallback instead of the error text.
func (h *Handler) handleError(c *gin.Context, err error, fallback string) {
	status := apperror.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		h.errorResponse(c, status, fallback)
		return
	}
	h.errorResponse(c, status, err.Error())
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
