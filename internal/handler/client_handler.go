package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
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

func pagination(c echo.Context) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit, (page - 1) * limit
}

// dateRange parses optional start_date / end_date query params (YYYY-MM-DD)
func dateRange(c echo.Context) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	if s := c.QueryParam("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, nil, err
		}
		start = &t
	}
	if s := c.QueryParam("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, nil, err
		}
		// Inclusive end of day
		t = t.Add(24 * time.Hour)
		end = &t
	}
	return start, end, nil
}

func minutesToHours(minutes int64) float64 {
	return float64(minutes) / 60
}

// CreateClient creates a client in the caller's tenant
func CreateClient(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("client", "create")
	tenantID := c.Get("tenant_id").(uint)

	var req struct {
		Name         string `json:"name"`
		ContactEmail string `json:"contact_email,omitempty"`
		ContactPhone string `json:"contact_phone,omitempty"`
		Address      string `json:"address,omitempty"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "client name is required"})
	}

	client := model.Client{
		TenantID:     tenantID,
		Name:         strings.TrimSpace(req.Name),
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Address:      req.Address,
		Active:       true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&client); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "client name already exists"})
		}
		log.Error("Failed to create client", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create client"})
	}

	log.Info("Client created", zap.Uint("client_id", client.ID), zap.Uint("tenant_id", tenantID))
	return c.JSON(http.StatusCreated, client)
}

// ListClients lists the tenant's clients with optional filters and pagination
func ListClients(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uint)
	page, limit, offset := pagination(c)

	query := database.GetDB().Model(&model.Client{}).Scopes(tenantscope.Tenant(tenantID))
	if active := c.QueryParam("active"); active != "" {
		query = query.Where("active = ?", active == "true")
	}
	if q := c.QueryParam("q"); q != "" {
		query = query.Where("lower(name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list clients"})
	}

	var clients []model.Client
	if err := query.Order("name").Limit(limit).Offset(offset).Find(&clients).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list clients"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"clients": clients,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// GetClient returns one client of the caller's tenant
func GetClient(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid client id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var client model.Client
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&client, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "client not found"})
	}

	return c.JSON(http.StatusOK, client)
}

// UpdateClient updates a client's details
func UpdateClient(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("client", "update")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid client id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	var req struct {
		Name         *string `json:"name,omitempty"`
		ContactEmail *string `json:"contact_email,omitempty"`
		ContactPhone *string `json:"contact_phone,omitempty"`
		Address      *string `json:"address,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var client model.Client
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&client, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "client not found"})
	}

	updates := map[string]interface{}{}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.ContactEmail != nil {
		updates["contact_email"] = *req.ContactEmail
	}
	if req.ContactPhone != nil {
		updates["contact_phone"] = *req.ContactPhone
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}

	if len(updates) > 0 {
		if err := database.GetDB().Model(&client).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return c.JSON(http.StatusConflict, echo.Map{"error": "client name already exists"})
			}
			log.Error("Failed to update client", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update client"})
		}
	}

	return c.JSON(http.StatusOK, client)
}

// DeactivateClient marks a client inactive without touching its history
func DeactivateClient(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("client", "deactivate")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid client id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("update")(time.Now())
	var client model.Client
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&client, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "client not found"})
	}

	now := time.Now()
	if err := database.GetDB().Model(&client).Updates(map[string]interface{}{
		"active":         false,
		"deactivated_at": now,
	}).Error; err != nil {
		log.Error("Failed to deactivate client", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to deactivate client"})
	}

	log.Info("Client deactivated", zap.Uint("client_id", client.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "client deactivated"})
}

// DeleteClient removes a client that has no projects. Clients with projects
// must keep their history; deleting them is rejected.
func DeleteClient(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("client", "delete")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid client id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("delete")(time.Now())
	var client model.Client
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&client, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "client not found"})
	}

	var projectCount int64
	if err := database.GetDB().Model(&model.Project{}).
		Scopes(tenantscope.Tenant(tenantID)).
		Where("client_id = ?", client.ID).
		Count(&projectCount).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete client"})
	}
	if projectCount > 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "client has projects and cannot be deleted"})
	}

	if err := database.GetDB().Delete(&client).Error; err != nil {
		log.Error("Failed to delete client", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete client"})
	}

	log.Info("Client deleted", zap.Uint("client_id", client.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "client deleted"})
}

// ListClientProjects lists the projects of one client
func ListClientProjects(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid client id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var client model.Client
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&client, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "client not found"})
	}

	var projects []model.Project
	if err := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		Where("client_id = ?", client.ID).
		Order("name").Find(&projects).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list projects"})
	}

	return c.JSON(http.StatusOK, echo.Map{"projects": projects})
}

// ClientTimeSummary aggregates closed time entries for one client, optionally
// within a date range, with a per-project breakdown
func ClientTimeSummary(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid client id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	start, end, err := dateRange(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date format, expected YYYY-MM-DD"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var client model.Client
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&client, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "client not found"})
	}

	query := database.GetDB().Model(&model.TimeEntry{}).
		Joins("JOIN projects ON projects.id = time_entries.project_id").
		Where("time_entries.tenant_id = ?", tenantID).
		Where("projects.client_id = ?", client.ID).
		Where("time_entries.end_time IS NOT NULL")
	if start != nil {
		query = query.Where("time_entries.start_time >= ?", *start)
	}
	if end != nil {
		query = query.Where("time_entries.start_time < ?", *end)
	}

	var rows []struct {
		ProjectID   uint
		ProjectName string
		Minutes     int64
		Amount      decimal.NullDecimal
	}
	if err := query.
		Select("time_entries.project_id AS project_id, projects.name AS project_name, " +
			"COALESCE(SUM(time_entries.duration_minutes), 0) AS minutes, " +
			"SUM(time_entries.amount) AS amount").
		Group("time_entries.project_id, projects.name").
		Order("projects.name").
		Scan(&rows).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to build summary"})
	}

	var totalMinutes int64
	totalAmount := decimal.Zero
	projects := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		totalMinutes += row.Minutes
		amount := decimal.Zero
		if row.Amount.Valid {
			amount = row.Amount.Decimal
			totalAmount = totalAmount.Add(amount)
		}
		projects = append(projects, map[string]interface{}{
			"project_id":   row.ProjectID,
			"project_name": row.ProjectName,
			"hours":        minutesToHours(row.Minutes),
			"amount":       amount,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"client_id":    client.ID,
		"client_name":  client.Name,
		"total_hours":  minutesToHours(totalMinutes),
		"total_amount": totalAmount,
		"projects":     projects,
	})
}
