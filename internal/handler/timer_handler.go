package handler

import (
	"errors"
	"net/http"
	"time"

	"timetracker-service/internal/model"
	"timetracker-service/internal/tenantscope"
	"timetracker-service/pkg/database"
	"timetracker-service/pkg/logger"
	"timetracker-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StartTimer opens a running time entry for the user. Only one timer may run
// at a time per user; the partial unique index backs up the pre-check, so two
// concurrent starts cannot both succeed.
func StartTimer(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTimerOperation("start")
	tenantID := c.Get("tenant_id").(uint)
	userID := c.Get("user_id").(uint)

	var req struct {
		ProjectID     uint   `json:"project_id"`
		Description   string `json:"description,omitempty"`
		TechnologyIDs []uint `json:"technology_ids,omitempty"`
	}
	if err := c.Bind(&req); err != nil || req.ProjectID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "project_id is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var project model.Project
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&project, req.ProjectID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "project not found"})
	}

	running, err := hasRunningTimer(database.GetDB(), tenantID, userID, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start timer"})
	}
	if running {
		prometheus.RecordTimerOperation("conflict")
		return c.JSON(http.StatusConflict, echo.Map{"error": "a timer is already running"})
	}

	// The entry takes the project's rate at start time
	entry := model.TimeEntry{
		TenantID:    tenantID,
		UserID:      userID,
		ProjectID:   project.ID,
		Description: req.Description,
		StartTime:   time.Now(),
		Billable:    true,
		HourlyRate:  project.HourlyRate,
		IsRunning:   true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	tx := database.GetDB().Begin()
	if result := tx.Create(&entry); result.Error != nil {
		tx.Rollback()
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			prometheus.RecordTimerOperation("conflict")
			return c.JSON(http.StatusConflict, echo.Map{"error": "a timer is already running"})
		}
		log.Error("Failed to start timer", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start timer"})
	}
	if err := attachTechnologies(tx, tenantID, entry.ID, req.TechnologyIDs); err != nil {
		tx.Rollback()
		return c.JSON(http.StatusNotFound, echo.Map{"error": "technology not found"})
	}
	if err := tx.Commit().Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start timer"})
	}

	prometheus.TimerStarted()

	log.Info("Timer started",
		zap.Uint("entry_id", entry.ID),
		zap.Uint("project_id", project.ID),
		zap.Uint("user_id", userID))
	return c.JSON(http.StatusCreated, entry)
}

// StopTimer closes the user's running time entry, deriving its duration and
// amount. The body may carry a final description replacing the one set at
// start.
func StopTimer(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTimerOperation("stop")
	tenantID := c.Get("tenant_id").(uint)
	userID := c.Get("user_id").(uint)

	var req struct {
		Description *string `json:"description,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var entry model.TimeEntry
	result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		Where("user_id = ? AND is_running = ?", userID, true).
		First(&entry)
	if result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no running timer"})
	}

	now := time.Now()
	entry.EndTime = &now
	entry.IsRunning = false
	if req.Description != nil {
		entry.Description = *req.Description
	}
	entry.Recompute()

	if err := database.GetDB().Save(&entry).Error; err != nil {
		log.Error("Failed to stop timer", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to stop timer"})
	}

	prometheus.TimerStopped()

	log.Info("Timer stopped",
		zap.Uint("entry_id", entry.ID),
		zap.Intp("duration_minutes", entry.DurationMinutes))
	return c.JSON(http.StatusOK, entry)
}

// CurrentTimer returns the user's running time entry, if any
func CurrentTimer(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uint)
	userID := c.Get("user_id").(uint)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var entry model.TimeEntry
	result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		Where("user_id = ? AND is_running = ?", userID, true).
		First(&entry)
	if result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no running timer"})
	}

	return c.JSON(http.StatusOK, entry)
}
