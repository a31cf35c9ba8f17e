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
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// CreateUser creates a user directly in the caller's tenant. Admin only.
func CreateUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("user", "create")
	tenantID := c.Get("tenant_id").(uint)

	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Role      string `json:"role,omitempty"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	if !validPassword(req.Password) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "password must be at least 8 characters with a letter and a digit"})
	}

	if req.Role == "" {
		req.Role = model.RoleUser
	}
	if req.Role != model.RoleAdmin && req.Role != model.RoleUser {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role"})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create user"})
	}

	user := model.User{
		TenantID:  tenantID,
		Email:     req.Email,
		Password:  string(hashedPassword),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		Active:    true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&user); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered in this tenant"})
		}
		log.Error("Failed to create user", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create user"})
	}

	log.Info("User created",
		zap.Uint("user_id", user.ID),
		zap.Uint("tenant_id", tenantID),
		zap.String("role", user.Role))
	return c.JSON(http.StatusCreated, userResponse(&user))
}

// ListUsers lists the users of the caller's tenant. Admin only.
func ListUsers(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uint)

	query := database.GetDB().Scopes(tenantscope.Tenant(tenantID))
	if active := c.QueryParam("active"); active != "" {
		query = query.Where("active = ?", active == "true")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var users []model.User
	if err := query.Order("id").Find(&users).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list users"})
	}

	out := make([]map[string]interface{}, 0, len(users))
	for i := range users {
		out = append(out, userResponse(&users[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"users": out})
}

// GetMyProfile returns the authenticated user's profile
func GetMyProfile(c echo.Context) error {
	userID := c.Get("user_id").(uint)
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&user, userID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	return c.JSON(http.StatusOK, userResponse(&user))
}

// UpdateMyProfile lets the authenticated user change their own name and email
func UpdateMyProfile(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("user", "update_profile")
	userID := c.Get("user_id").(uint)
	tenantID := c.Get("tenant_id").(uint)

	var req struct {
		Email     *string `json:"email,omitempty"`
		FirstName *string `json:"first_name,omitempty"`
		LastName  *string `json:"last_name,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var user model.User
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&user, userID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	updates := map[string]interface{}{}
	if req.Email != nil && *req.Email != "" {
		updates["email"] = *req.Email
	}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}

	if len(updates) > 0 {
		if err := database.GetDB().Model(&user).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered in this tenant"})
			}
			log.Error("Failed to update profile", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update profile"})
		}
	}

	return c.JSON(http.StatusOK, userResponse(&user))
}

// ChangePassword lets the authenticated user change their own password after
// confirming the current one
func ChangePassword(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("user", "change_password")
	userID := c.Get("user_id").(uint)
	tenantID := c.Get("tenant_id").(uint)

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if !validPassword(req.NewPassword) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "password must be at least 8 characters with a letter and a digit"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var user model.User
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&user, userID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "current password is incorrect"})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to change password"})
	}

	if err := database.GetDB().Model(&user).Update("password", string(hashedPassword)).Error; err != nil {
		log.Error("Failed to change password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to change password"})
	}

	log.Info("Password changed", zap.Uint("user_id", user.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// GetUser returns a user in the caller's tenant. Users can read themselves;
// reading others requires the admin role.
func GetUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	if id != c.Get("user_id").(uint) && c.Get("user_role").(string) != model.RoleAdmin {
		prometheus.RecordAuthError("forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "admin role required"})
	}

	tenantID := c.Get("tenant_id").(uint)
	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&user, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	return c.JSON(http.StatusOK, userResponse(&user))
}

// UpdateUser updates a user in the caller's tenant. Users can update
// themselves; updating others requires the admin role.
func UpdateUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("user", "update")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	if id != c.Get("user_id").(uint) && c.Get("user_role").(string) != model.RoleAdmin {
		prometheus.RecordAuthError("forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "admin role required"})
	}

	var req struct {
		Email     *string `json:"email,omitempty"`
		FirstName *string `json:"first_name,omitempty"`
		LastName  *string `json:"last_name,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	tenantID := c.Get("tenant_id").(uint)
	defer prometheus.TrackDBOperation("update")(time.Now())
	var user model.User
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&user, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	updates := map[string]interface{}{}
	if req.Email != nil && *req.Email != "" {
		updates["email"] = *req.Email
	}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}

	if len(updates) > 0 {
		if err := database.GetDB().Model(&user).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered in this tenant"})
			}
			log.Error("Failed to update user", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update user"})
		}
	}

	return c.JSON(http.StatusOK, userResponse(&user))
}

// UpdateUserRole changes a user's role. Admin only.
func UpdateUserRole(c echo.Context) error {
	// Same semantics as the tenant-scoped role endpoint, addressed by user ID
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("user", "update_role")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
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

	tenantID := c.Get("tenant_id").(uint)
	defer prometheus.TrackDBOperation("update")(time.Now())
	var user model.User
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&user, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	if err := database.GetDB().Model(&user).Update("role", req.Role).Error; err != nil {
		log.Error("Failed to update user role", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update role"})
	}

	log.Info("User role updated", zap.Uint("user_id", user.ID), zap.String("role", req.Role))
	return c.JSON(http.StatusOK, userResponse(&user))
}

// DeactivateUser marks a user inactive so they can no longer log in.
// Admin only; admins cannot deactivate themselves.
func DeactivateUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("user", "deactivate")

	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	if id == c.Get("user_id").(uint) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot deactivate yourself"})
	}

	tenantID := c.Get("tenant_id").(uint)
	defer prometheus.TrackDBOperation("update")(time.Now())
	var user model.User
	if result := database.GetDB().Scopes(tenantscope.Tenant(tenantID)).
		First(&user, id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	now := time.Now()
	if err := database.GetDB().Model(&user).Updates(map[string]interface{}{
		"active":         false,
		"deactivated_at": now,
	}).Error; err != nil {
		log.Error("Failed to deactivate user", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to deactivate user"})
	}

	log.Info("User deactivated", zap.Uint("user_id", user.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "user deactivated"})
}
