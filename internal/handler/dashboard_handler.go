package handler

import (
	"net/http"
	"time"

	"timetracker-service/internal/model"
	"timetracker-service/internal/tenantscope"
	"timetracker-service/pkg/database"
	"timetracker-service/prometheus"

	"github.com/labstack/echo/v4"
)

func closedMinutesSince(tenantID, userID uint, since time.Time) (int64, error) {
	var minutes int64
	err := database.GetDB().Model(&model.TimeEntry{}).
		Scopes(tenantscope.Tenant(tenantID)).
		Where("user_id = ? AND end_time IS NOT NULL AND start_time >= ?", userID, since).
		Select("COALESCE(SUM(duration_minutes), 0)").
		Scan(&minutes).Error
	return minutes, err
}

// Dashboard summarizes the user's tracked time: the running timer, hours for
// today, this week and this month, the most recent entries, and hour
// breakdowns per project and per client
func Dashboard(c echo.Context) error {
	prometheus.RecordResourceOperation("dashboard", "view")
	tenantID := c.Get("tenant_id").(uint)
	userID := c.Get("user_id").(uint)

	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	// Week starts on Monday
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	weekStart := todayStart.AddDate(0, 0, -(weekday - 1))
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	defer prometheus.TrackDBOperation("query")(time.Now())

	todayMinutes, err := closedMinutesSince(tenantID, userID, todayStart)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to build dashboard"})
	}
	weekMinutes, err := closedMinutesSince(tenantID, userID, weekStart)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to build dashboard"})
	}
	monthMinutes, err := closedMinutesSince(tenantID, userID, monthStart)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to build dashboard"})
	}

	// Running timer, if any
	var runningTimer *model.TimeEntry
	var running model.TimeEntry
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		Where("user_id = ? AND is_running = ?", userID, true).
		First(&running); result.Error == nil {
		runningTimer = &running
	}

	// Five most recent closed entries
	var recent []model.TimeEntry
	if err := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		Where("user_id = ? AND end_time IS NOT NULL", userID).
		Order("start_time DESC").Limit(5).
		Find(&recent).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to build dashboard"})
	}

	// Hours per project
	var projectRows []struct {
		ProjectID   uint
		ProjectName string
		Minutes     int64
	}
	if err := database.GetDB().Model(&model.TimeEntry{}).
		Joins("JOIN projects ON projects.id = time_entries.project_id").
		Where("time_entries.tenant_id = ? AND time_entries.user_id = ? AND time_entries.end_time IS NOT NULL", tenantID, userID).
		Select("time_entries.project_id AS project_id, projects.name AS project_name, " +
			"COALESCE(SUM(time_entries.duration_minutes), 0) AS minutes").
		Group("time_entries.project_id, projects.name").
		Order("minutes DESC").
		Scan(&projectRows).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to build dashboard"})
	}

	byProject := make([]map[string]interface{}, 0, len(projectRows))
	for _, row := range projectRows {
		byProject = append(byProject, map[string]interface{}{
			"project_id":   row.ProjectID,
			"project_name": row.ProjectName,
			"hours":        minutesToHours(row.Minutes),
		})
	}

	// Hours per client
	var clientRows []struct {
		ClientID   uint
		ClientName string
		Minutes    int64
	}
	if err := database.GetDB().Model(&model.TimeEntry{}).
		Joins("JOIN projects ON projects.id = time_entries.project_id").
		Joins("JOIN clients ON clients.id = projects.client_id").
		Where("time_entries.tenant_id = ? AND time_entries.user_id = ? AND time_entries.end_time IS NOT NULL", tenantID, userID).
		Select("clients.id AS client_id, clients.name AS client_name, " +
			"COALESCE(SUM(time_entries.duration_minutes), 0) AS minutes").
		Group("clients.id, clients.name").
		Order("minutes DESC").
		Scan(&clientRows).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to build dashboard"})
	}

	byClient := make([]map[string]interface{}, 0, len(clientRows))
	for _, row := range clientRows {
		byClient = append(byClient, map[string]interface{}{
			"client_id":   row.ClientID,
			"client_name": row.ClientName,
			"hours":       minutesToHours(row.Minutes),
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"running_timer":  runningTimer,
		"today_hours":    minutesToHours(todayMinutes),
		"week_hours":     minutesToHours(weekMinutes),
		"month_hours":    minutesToHours(monthMinutes),
		"recent_entries": recent,
		"by_project":     byProject,
		"by_client":      byClient,
	})
}
