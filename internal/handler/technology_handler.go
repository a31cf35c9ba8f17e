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
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateTechnology creates a technology tag in the caller's tenant
func CreateTechnology(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("technology", "create")
	tenantID := c.Get("tenant_id").(uint)

	var req struct {
		Name        string `json:"name"`
		Category    string `json:"category,omitempty"`
		Version     string `json:"version,omitempty"`
		Description string `json:"description,omitempty"`
		Color       string `json:"color,omitempty"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "technology name is required"})
	}

	technology := model.Technology{
		TenantID:    tenantID,
		Name:        strings.TrimSpace(req.Name),
		Category:    req.Category,
		Version:     req.Version,
		Description: req.Description,
		Color:       req.Color,
		Active:      true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&technology); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "technology name already exists"})
		}
		log.Error("Failed to create technology", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create technology"})
	}

	log.Info("Technology created",
		zap.Uint("technology_id", technology.ID),
		zap.Uint("tenant_id", tenantID))
	return c.JSON(http.StatusCreated, technology)
}

// ListTechnologies lists the tenant's technologies with optional filters
func ListTechnologies(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uint)

	query := database.GetDB().Scopes(tenantscope.Tenant(tenantID))
	if active := c.QueryParam("active"); active != "" {
		query = query.Where("active = ?", active == "true")
	}
	if category := c.QueryParam("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var technologies []model.Technology
	if err := query.Order("name").Find(&technologies).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list technologies"})
	}

	return c.JSON(http.StatusOK, echo.Map{"technologies": technologies})
}

// GetTechnology returns one technology of the caller's tenant
func GetTechnology(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid technology id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var technology model.Technology
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&technology, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "technology not found"})
	}

	return c.JSON(http.StatusOK, technology)
}

// UpdateTechnology updates a technology's details
func UpdateTechnology(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("technology", "update")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid technology id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	var req struct {
		Name        *string `json:"name,omitempty"`
		Category    *string `json:"category,omitempty"`
		Version     *string `json:"version,omitempty"`
		Description *string `json:"description,omitempty"`
		Color       *string `json:"color,omitempty"`
		Active      *bool   `json:"active,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var technology model.Technology
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&technology, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "technology not found"})
	}

	updates := map[string]interface{}{}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.Version != nil {
		updates["version"] = *req.Version
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Color != nil {
		updates["color"] = *req.Color
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if len(updates) > 0 {
		if err := database.GetDB().Model(&technology).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return c.JSON(http.StatusConflict, echo.Map{"error": "technology name already exists"})
			}
			log.Error("Failed to update technology", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update technology"})
		}
	}

	return c.JSON(http.StatusOK, technology)
}

// DeleteTechnology removes a technology and its project and time entry links
func DeleteTechnology(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("technology", "delete")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid technology id"})
	}
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("delete")(time.Now())
	var technology model.Technology
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&technology, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "technology not found"})
	}

	tx := database.GetDB().Begin()
	if err := tx.Where("technology_id = ?", technology.ID).Delete(&model.ProjectTechnology{}).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to delete technology links", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete technology"})
	}
	if err := tx.Where("technology_id = ?", technology.ID).Delete(&model.TimeEntryTechnology{}).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to delete technology links", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete technology"})
	}
	if err := tx.Delete(&technology).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to delete technology", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete technology"})
	}
	if err := tx.Commit().Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete technology"})
	}

	log.Info("Technology deleted", zap.Uint("technology_id", technology.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "technology deleted"})
}
