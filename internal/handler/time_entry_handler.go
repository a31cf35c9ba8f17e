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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// hasRunningTimer reports whether the user already has a live timer
func hasRunningTimer(db *gorm.DB, tenantID, userID uint, excludeID uint) (bool, error) {
	query := db.Model(&model.TimeEntry{}).
		Scopes(tenantscope.Tenant(tenantID)).
		Where("user_id = ? AND is_running = ?", userID, true)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func attachTechnologies(tx *gorm.DB, tenantID, entryID uint, technologyIDs []uint) error {
	for _, technologyID := range technologyIDs {
		var technology model.Technology
		if result := tx.Scopes(tenantscope.Tenant(tenantID)).
			First(&technology, technologyID); result.Error != nil {
			return result.Error
		}
		link := model.TimeEntryTechnology{TimeEntryID: entryID, TechnologyID: technologyID}
		if err := tx.Create(&link).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return nil
}

// CreateTimeEntry records worked time manually. Omitting end_time creates a
// running entry, subject to the one-running-timer rule.
func CreateTimeEntry(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("time_entry", "create")
	tenantID := c.Get("tenant_id").(uint)
	userID := c.Get("user_id").(uint)

	var req struct {
		ProjectID     uint             `json:"project_id"`
		Description   string           `json:"description,omitempty"`
		StartTime     *time.Time       `json:"start_time"`
		EndTime       *time.Time       `json:"end_time,omitempty"`
		Billable      *bool            `json:"billable,omitempty"`
		HourlyRate    *decimal.Decimal `json:"hourly_rate,omitempty"`
		TechnologyIDs []uint           `json:"technology_ids,omitempty"`
	}
	if err := c.Bind(&req); err != nil || req.ProjectID == 0 || req.StartTime == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "project_id and start_time are required"})
	}

	if req.EndTime != nil && !req.EndTime.After(*req.StartTime) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "end_time must be after start_time"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var project model.Project
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&project, req.ProjectID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "project not found"})
	}

	billable := true
	if req.Billable != nil {
		billable = *req.Billable
	}

	// The entry inherits the project's rate unless one is given explicitly
	rate := req.HourlyRate
	if rate == nil {
		rate = project.HourlyRate
	}

	entry := model.TimeEntry{
		TenantID:    tenantID,
		UserID:      userID,
		ProjectID:   project.ID,
		Description: req.Description,
		StartTime:   *req.StartTime,
		EndTime:     req.EndTime,
		Billable:    billable,
		HourlyRate:  rate,
		IsRunning:   req.EndTime == nil,
	}
	entry.Recompute()

	if entry.IsRunning {
		running, err := hasRunningTimer(database.GetDB(), tenantID, userID, 0)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create time entry"})
		}
		if running {
			prometheus.RecordTimerOperation("conflict")
			return c.JSON(http.StatusConflict, echo.Map{"error": "a timer is already running"})
		}
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	tx := database.GetDB().Begin()
	if result := tx.Create(&entry); result.Error != nil {
		tx.Rollback()
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			prometheus.RecordTimerOperation("conflict")
			return c.JSON(http.StatusConflict, echo.Map{"error": "a timer is already running"})
		}
		log.Error("Failed to create time entry", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create time entry"})
	}
	if err := attachTechnologies(tx, tenantID, entry.ID, req.TechnologyIDs); err != nil {
		tx.Rollback()
		return c.JSON(http.StatusNotFound, echo.Map{"error": "technology not found"})
	}
	if err := tx.Commit().Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create time entry"})
	}

	if entry.IsRunning {
		prometheus.TimerStarted()
	}

	log.Info("Time entry created",
		zap.Uint("entry_id", entry.ID),
		zap.Uint("project_id", project.ID),
		zap.Bool("is_running", entry.IsRunning))
	return c.JSON(http.StatusCreated, entry)
}

// ListTimeEntries lists time entries with filters, pagination and totals.
// Regular users see their own entries; admins can see everyone's.
func ListTimeEntries(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uint)
	userID := c.Get("user_id").(uint)
	role := c.Get("user_role").(string)
	page, limit, offset := pagination(c)

	start, end, err := dateRange(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date format, expected YYYY-MM-DD"})
	}

	// Each use gets a fresh query so pagination does not leak into the totals
	filtered := func() *gorm.DB {
		query := database.GetDB().Model(&model.TimeEntry{}).Scopes(tenantscope.Tenant(tenantID))
		if role == model.RoleAdmin {
			if filterUser := c.QueryParam("user_id"); filterUser != "" {
				query = query.Where("user_id = ?", filterUser)
			}
		} else {
			query = query.Where("user_id = ?", userID)
		}
		if projectID := c.QueryParam("project_id"); projectID != "" {
			query = query.Where("project_id = ?", projectID)
		}
		if billable := c.QueryParam("billable"); billable != "" {
			query = query.Where("billable = ?", billable == "true")
		}
		if start != nil {
			query = query.Where("start_time >= ?", *start)
		}
		if end != nil {
			query = query.Where("start_time < ?", *end)
		}
		return query
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list time entries"})
	}

	var entries []model.TimeEntry
	if err := filtered().Order("start_time DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list time entries"})
	}

	// Totals over the whole filtered set, closed entries only
	var totals struct {
		Minutes         int64
		BillableMinutes int64
		Amount          decimal.NullDecimal
	}
	if err := filtered().Where("end_time IS NOT NULL").
		Select("COALESCE(SUM(duration_minutes), 0) AS minutes, " +
			"COALESCE(SUM(CASE WHEN billable THEN duration_minutes ELSE 0 END), 0) AS billable_minutes, " +
			"SUM(amount) AS amount").
		Scan(&totals).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list time entries"})
	}

	totalAmount := decimal.Zero
	if totals.Amount.Valid {
		totalAmount = totals.Amount.Decimal
	}

	return c.JSON(http.StatusOK, echo.Map{
		"time_entries":   entries,
		"total":          total,
		"page":           page,
		"limit":          limit,
		"total_hours":    minutesToHours(totals.Minutes),
		"billable_hours": minutesToHours(totals.BillableMinutes),
		"total_amount":   totalAmount,
	})
}

// GetTimeEntry returns one time entry. Another user's entry is visible to
// admins only; for everyone else it is not found.
func GetTimeEntry(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid time entry id"})
	}
	tenantID := c.Get("tenant_id").(uint)
	userID := c.Get("user_id").(uint)
	role := c.Get("user_role").(string)

	defer prometheus.TrackDBOperation("query")(time.Now())
	query := database.GetDB().Scopes(tenantscope.Tenant(tenantID))
	if role != model.RoleAdmin {
		query = query.Where("user_id = ?", userID)
	}
	var entry model.TimeEntry
	if result := query.First(&entry, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "time entry not found"})
	}

	return c.JSON(http.StatusOK, entry)
}

// UpdateTimeEntry updates an entry and recomputes its derived fields when the
// times or rate change
func UpdateTimeEntry(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("time_entry", "update")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid time entry id"})
	}
	tenantID := c.Get("tenant_id").(uint)
	userID := c.Get("user_id").(uint)
	role := c.Get("user_role").(string)

	var req struct {
		Description *string          `json:"description,omitempty"`
		StartTime   *time.Time       `json:"start_time,omitempty"`
		EndTime     *time.Time       `json:"end_time,omitempty"`
		ClearEnd    bool             `json:"clear_end_time,omitempty"`
		Billable    *bool            `json:"billable,omitempty"`
		HourlyRate  *decimal.Decimal `json:"hourly_rate,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	query := database.GetDB().Scopes(tenantscope.Tenant(tenantID))
	if role != model.RoleAdmin {
		query = query.Where("user_id = ?", userID)
	}
	var entry model.TimeEntry
	if result := query.First(&entry, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "time entry not found"})
	}

	wasRunning := entry.IsRunning

	if req.Description != nil {
		entry.Description = *req.Description
	}
	if req.StartTime != nil {
		entry.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		entry.EndTime = req.EndTime
	}
	if req.ClearEnd {
		entry.EndTime = nil
	}
	if req.Billable != nil {
		entry.Billable = *req.Billable
	}
	if req.HourlyRate != nil {
		entry.HourlyRate = req.HourlyRate
	}

	if entry.EndTime != nil && !entry.EndTime.After(entry.StartTime) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "end_time must be after start_time"})
	}

	entry.IsRunning = entry.EndTime == nil
	entry.Recompute()

	// Reopening an entry turns it into a running timer; the rule still holds
	if entry.IsRunning && !wasRunning {
		running, err := hasRunningTimer(database.GetDB(), tenantID, entry.UserID, entry.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update time entry"})
		}
		if running {
			prometheus.RecordTimerOperation("conflict")
			return c.JSON(http.StatusConflict, echo.Map{"error": "a timer is already running"})
		}
	}

	if err := database.GetDB().Save(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			prometheus.RecordTimerOperation("conflict")
			return c.JSON(http.StatusConflict, echo.Map{"error": "a timer is already running"})
		}
		log.Error("Failed to update time entry", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update time entry"})
	}

	if entry.IsRunning && !wasRunning {
		prometheus.TimerStarted()
	}
	if !entry.IsRunning && wasRunning {
		prometheus.TimerStopped()
	}

	return c.JSON(http.StatusOK, entry)
}

// DeleteTimeEntry removes a time entry and its technology links
func DeleteTimeEntry(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("time_entry", "delete")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid time entry id"})
	}
	tenantID := c.Get("tenant_id").(uint)
	userID := c.Get("user_id").(uint)
	role := c.Get("user_role").(string)

	defer prometheus.TrackDBOperation("delete")(time.Now())
	query := database.GetDB().Scopes(tenantscope.Tenant(tenantID))
	if role != model.RoleAdmin {
		query = query.Where("user_id = ?", userID)
	}
	var entry model.TimeEntry
	if result := query.First(&entry, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "time entry not found"})
	}

	wasRunning := entry.IsRunning

	tx := database.GetDB().Begin()
	if err := tx.Where("time_entry_id = ?", entry.ID).Delete(&model.TimeEntryTechnology{}).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to delete time entry links", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete time entry"})
	}
	// A soft-deleted row must not keep holding the user's running slot
	if wasRunning {
		if err := tx.Model(&entry).Update("is_running", false).Error; err != nil {
			tx.Rollback()
			log.Error("Failed to close running time entry", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete time entry"})
		}
	}
	if err := tx.Delete(&entry).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to delete time entry", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete time entry"})
	}
	if err := tx.Commit().Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete time entry"})
	}

	if wasRunning {
		prometheus.TimerStopped()
	}

	log.Info("Time entry deleted", zap.Uint("entry_id", entry.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "time entry deleted"})
}
