package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"timetracker-service/internal/model"
	"timetracker-service/internal/tenantscope"
	"timetracker-service/pkg/database"
	"timetracker-service/pkg/jwtutil"
	"timetracker-service/pkg/logger"
	"timetracker-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func pathID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	return uint(id), err
}

func tenantResponse(t *model.Tenant) map[string]interface{} {
	return map[string]interface{}{
		"id":             t.ID,
		"name":           t.Name,
		"domain":         t.Domain,
		"active":         t.Active,
		"deactivated_at": t.DeactivatedAt,
		"created_at":     t.CreatedAt,
	}
}

// CreateTenant creates a new tenant. Only admins can create tenants.
func CreateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("tenant", "create")

	var req struct {
		Name   string `json:"name"`
		Domain string `json:"domain,omitempty"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant name is required"})
	}

	tenant := model.Tenant{
		Name:   req.Name,
		Domain: req.Domain,
		Active: true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&tenant); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "tenant name already registered"})
		}
		log.Error("Failed to create tenant", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create tenant"})
	}

	log.Info("Tenant created", zap.Uint("tenant_id", tenant.ID), zap.String("name", tenant.Name))
	return c.JSON(http.StatusCreated, tenantResponse(&tenant))
}

// ListTenants returns the tenants visible to the authenticated user
func ListTenants(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, tenantID); result.Error != nil {
		return c.JSON(http.StatusOK, echo.Map{"tenants": []interface{}{}})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"tenants": []map[string]interface{}{tenantResponse(&tenant)},
	})
}

// GetTenant returns a tenant by ID. A tenant other than the caller's own is
// reported as not found.
func GetTenant(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}

	tenantID := c.Get("tenant_id").(uint)
	if id != tenantID {
		prometheus.RecordTenantError(tenantID, "cross_tenant_access")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	return c.JSON(http.StatusOK, tenantResponse(&tenant))
}

// UpdateTenant updates the caller's tenant. Admin only.
func UpdateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("tenant", "update")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}

	tenantID := c.Get("tenant_id").(uint)
	if id != tenantID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	var req struct {
		Name     *string `json:"name,omitempty"`
		Domain   *string `json:"domain,omitempty"`
		Settings *string `json:"settings,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	updates := map[string]interface{}{}
	if req.Name != nil && *req.Name != "" {
		updates["name"] = *req.Name
	}
	if req.Domain != nil {
		updates["domain"] = *req.Domain
	}
	if req.Settings != nil {
		updates["settings"] = *req.Settings
	}

	if len(updates) > 0 {
		if err := database.GetDB().Model(&tenant).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return c.JSON(http.StatusConflict, echo.Map{"error": "tenant name already registered"})
			}
			log.Error("Failed to update tenant", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update tenant"})
		}
	}

	return c.JSON(http.StatusOK, tenantResponse(&tenant))
}

// DeactivateTenant marks the caller's tenant inactive. Admin only.
func DeactivateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("tenant", "deactivate")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}

	tenantID := c.Get("tenant_id").(uint)
	if id != tenantID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	now := time.Now()
	if err := database.GetDB().Model(&tenant).Updates(map[string]interface{}{
		"active":         false,
		"deactivated_at": now,
	}).Error; err != nil {
		log.Error("Failed to deactivate tenant", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to deactivate tenant"})
	}

	log.Info("Tenant deactivated", zap.Uint("tenant_id", tenant.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "tenant deactivated"})
}

// InviteUser creates an invitation for a new user to join the tenant and
// returns the invitation token for delivery. Admin only.
func InviteUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("tenant", "invite")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}

	tenantID := c.Get("tenant_id").(uint)
	if id != tenantID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	var req struct {
		Email   string `json:"email"`
		Role    string `json:"role,omitempty"`
		Message string `json:"message,omitempty"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}

	if req.Role == "" {
		req.Role = model.RoleUser
	}
	if req.Role != model.RoleAdmin && req.Role != model.RoleUser {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role"})
	}

	// The invited email must not already belong to the tenant
	defer prometheus.TrackDBOperation("query")(time.Now())
	var existingUser model.User
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		Where("email = ?", req.Email).First(&existingUser); result.Error == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered in this tenant"})
	}

	token, err := jwtutil.GenerateInvitationToken(req.Email, tenantID, req.Role)
	if err != nil {
		log.Error("Failed to generate invitation token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create invitation"})
	}

	claims, _ := jwtutil.ValidateInvitationToken(token)
	invitation := model.Invitation{
		TenantID:    tenantID,
		Email:       req.Email,
		Role:        req.Role,
		Token:       token,
		Status:      model.InvitationStatusPending,
		Message:     req.Message,
		InvitedByID: c.Get("user_id").(uint),
		ExpiresAt:   claims.ExpiresAt.Time,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&invitation); result.Error != nil {
		log.Error("Failed to create invitation", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create invitation"})
	}

	log.Info("Invitation created",
		zap.String("email", req.Email),
		zap.String("role", req.Role),
		zap.Uint("tenant_id", tenantID))

	return c.JSON(http.StatusCreated, echo.Map{
		"id":         invitation.ID,
		"email":      invitation.Email,
		"role":       invitation.Role,
		"status":     invitation.Status,
		"token":      token,
		"expires_at": invitation.ExpiresAt,
	})
}

// ListTenantUsers lists the users in the caller's tenant. Admin only.
func ListTenantUsers(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}

	tenantID := c.Get("tenant_id").(uint)
	if id != tenantID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var users []model.User
	if err := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		Order("id").Find(&users).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list users"})
	}

	out := make([]map[string]interface{}, 0, len(users))
	for i := range users {
		out = append(out, userResponse(&users[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"users": out})
}

// UpdateTenantUserRole changes the role of a user in the tenant. Admin only.
func UpdateTenantUserRole(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("tenant", "update_role")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}
	userID, err := pathID(c, "user_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	tenantID := c.Get("tenant_id").(uint)
	if id != tenantID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Role != model.RoleAdmin && req.Role != model.RoleUser {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var user model.User
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&user, userID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	if err := database.GetDB().Model(&user).Update("role", req.Role).Error; err != nil {
		log.Error("Failed to update user role", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update role"})
	}

	log.Info("User role updated",
		zap.Uint("user_id", user.ID),
		zap.String("role", req.Role))
	return c.JSON(http.StatusOK, userResponse(&user))
}

// RemoveTenantUser removes a user from the tenant. Admins cannot remove
// themselves. Admin only.
func RemoveTenantUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("tenant", "remove_user")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant id"})
	}
	userID, err := pathID(c, "user_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	tenantID := c.Get("tenant_id").(uint)
	if id != tenantID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	if userID == c.Get("user_id").(uint) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot remove yourself"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	var user model.User
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&user, userID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	if err := database.GetDB().Delete(&user).Error; err != nil {
		log.Error("Failed to remove user", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to remove user"})
	}

	log.Info("User removed from tenant",
		zap.Uint("user_id", user.ID),
		zap.Uint("tenant_id", tenantID))
	return c.JSON(http.StatusOK, echo.Map{"message": "user removed"})
}
