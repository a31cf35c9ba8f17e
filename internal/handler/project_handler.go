package handler

import (
	"errors"
	"net/http"
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

// CreateProject creates a project for a client of the caller's tenant
func CreateProject(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("project", "create")
	tenantID := c.Get("tenant_id").(uint)

	var req struct {
		ClientID    uint             `json:"client_id"`
		Name        string           `json:"name"`
		Description string           `json:"description,omitempty"`
		Status      string           `json:"status,omitempty"`
		StartDate   *time.Time       `json:"start_date,omitempty"`
		EndDate     *time.Time       `json:"end_date,omitempty"`
		Budget      *decimal.Decimal `json:"budget,omitempty"`
		HourlyRate  *decimal.Decimal `json:"hourly_rate,omitempty"`
	}
	if err := c.Bind(&req); err != nil || req.ClientID == 0 || strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "client_id and name are required"})
	}

	if req.Status == "" {
		req.Status = model.ProjectStatusActive
	}
	if !model.ValidProjectStatus(req.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project status"})
	}

	// The client must belong to the caller's tenant
	defer prometheus.TrackDBOperation("query")(time.Now())
	var client model.Client
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&client, req.ClientID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "client not found"})
	}

	project := model.Project{
		TenantID:    tenantID,
		ClientID:    client.ID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Status:      req.Status,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Budget:      req.Budget,
		HourlyRate:  req.HourlyRate,
		Active:      true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&project); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "project name already exists for this client"})
		}
		log.Error("Failed to create project", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create project"})
	}

	log.Info("Project created",
		zap.Uint("project_id", project.ID),
		zap.Uint("client_id", client.ID),
		zap.Uint("tenant_id", tenantID))
	return c.JSON(http.StatusCreated, project)
}

// ListProjects lists the tenant's projects with optional filters
func ListProjects(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uint)
	page, limit, offset := pagination(c)

	query := database.GetDB().Model(&model.Project{}).Scopes(tenantscope.Tenant(tenantID))
	if clientID := c.QueryParam("client_id"); clientID != "" {
		query = query.Where("client_id = ?", clientID)
	}
	if active := c.QueryParam("active"); active != "" {
		query = query.Where("active = ?", active == "true")
	}
	if status := c.QueryParam("status"); status != "" {
		if !model.ValidProjectStatus(status) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project status"})
		}
		query = query.Where("status = ?", status)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list projects"})
	}

	var projects []model.Project
	if err := query.Order("name").Limit(limit).Offset(offset).Find(&projects).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list projects"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"projects": projects,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// GetProject returns one project of the caller's tenant
func GetProject(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var project model.Project
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&project, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "project not found"})
	}

	return c.JSON(http.StatusOK, project)
}

// UpdateProject updates a project's details
func UpdateProject(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("project", "update")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	var req struct {
		Name        *string          `json:"name,omitempty"`
		Description *string          `json:"description,omitempty"`
		Status      *string          `json:"status,omitempty"`
		StartDate   *time.Time       `json:"start_date,omitempty"`
		EndDate     *time.Time       `json:"end_date,omitempty"`
		Budget      *decimal.Decimal `json:"budget,omitempty"`
		HourlyRate  *decimal.Decimal `json:"hourly_rate,omitempty"`
		Active      *bool            `json:"active,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Status != nil && !model.ValidProjectStatus(*req.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project status"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var project model.Project
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&project, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "project not found"})
	}

	updates := map[string]interface{}{}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.StartDate != nil {
		updates["start_date"] = *req.StartDate
	}
	if req.EndDate != nil {
		updates["end_date"] = *req.EndDate
	}
	if req.Budget != nil {
		updates["budget"] = *req.Budget
	}
	if req.HourlyRate != nil {
		updates["hourly_rate"] = *req.HourlyRate
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if len(updates) > 0 {
		if err := database.GetDB().Model(&project).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return c.JSON(http.StatusConflict, echo.Map{"error": "project name already exists for this client"})
			}
			log.Error("Failed to update project", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update project"})
		}
	}

	return c.JSON(http.StatusOK, project)
}

// ListProjectTechnologies lists the technologies assigned to a project
func ListProjectTechnologies(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var project model.Project
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&project, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "project not found"})
	}

	var technologies []model.Technology
	if err := database.GetDB().
		Joins("JOIN project_technologies ON project_technologies.technology_id = technologies.id").
		Where("project_technologies.project_id = ?", project.ID).
		Order("technologies.name").
		Find(&technologies).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list technologies"})
	}

	return c.JSON(http.StatusOK, echo.Map{"technologies": technologies})
}

// AssignTechnology attaches a technology of the tenant to a project
func AssignTechnology(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("project", "assign_technology")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project id"})
	}
	technologyID, err := pathID(c, "technology_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid technology id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var project model.Project
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&project, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "project not found"})
	}

	var technology model.Technology
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&technology, technologyID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "technology not found"})
	}

	link := model.ProjectTechnology{
		ProjectID:    project.ID,
		TechnologyID: technology.ID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&link); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "technology already assigned to this project"})
		}
		log.Error("Failed to assign technology", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to assign technology"})
	}

	log.Info("Technology assigned to project",
		zap.Uint("project_id", project.ID),
		zap.Uint("technology_id", technology.ID))
	return c.JSON(http.StatusCreated, echo.Map{"message": "technology assigned"})
}

// RemoveTechnology detaches a technology from a project
func RemoveTechnology(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("project", "remove_technology")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project id"})
	}
	technologyID, err := pathID(c, "technology_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid technology id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("delete")(time.Now())
	var project model.Project
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&project, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "project not found"})
	}

	result := database.GetDB().
		Where("project_id = ? AND technology_id = ?", project.ID, technologyID).
		Delete(&model.ProjectTechnology{})
	if result.Error != nil {
		log.Error("Failed to remove technology", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to remove technology"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "technology not assigned to this project"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "technology removed"})
}
