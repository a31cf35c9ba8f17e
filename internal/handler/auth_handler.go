package handler

import (
	"errors"
	"net/http"
	"time"
	"unicode"

	"timetracker-service/internal/model"
	"timetracker-service/pkg/database"
	"timetracker-service/pkg/jwtutil"
	"timetracker-service/pkg/logger"
	"timetracker-service/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// validPassword enforces the password policy: at least 8 characters with at
// least one letter and one digit
func validPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func userResponse(user *model.User) map[string]interface{} {
	return map[string]interface{}{
		"id":         user.ID,
		"email":      user.Email,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"role":       user.Role,
		"active":     user.Active,
	}
}

// Register creates a new tenant together with its first admin user, in one
// transaction, and logs the new user in
func Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		TenantName string `json:"tenant_name"`
		Email      string `json:"email"`
		Password   string `json:"password"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.TenantName == "" || req.Email == "" || req.Password == "" {
		log.Error("Invalid registration data",
			zap.String("tenant_name", req.TenantName),
			zap.String("email", req.Email),
			zap.Bool("password_provided", req.Password != ""))
		prometheus.RecordAuthError("incomplete_registration")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_name, email and password are required"})
	}

	if !validPassword(req.Password) {
		prometheus.RecordAuthError("weak_password")
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "password must be at least 8 characters with a letter and a digit"})
	}

	// Check if the tenant name is taken - track DB query
	defer prometheus.TrackDBOperation("query")(time.Now())
	var existingTenant model.Tenant
	if result := database.GetDB().Where("name = ?", req.TenantName).First(&existingTenant); result.Error == nil {
		log.Error("Tenant already exists", zap.String("tenant_name", req.TenantName))
		prometheus.RecordAuthError("tenant_already_exists")
		return c.JSON(http.StatusConflict, echo.Map{"error": "tenant name already registered"})
	}

	var existingUser model.User
	if result := database.GetDB().Where("email = ?", req.Email).First(&existingUser); result.Error == nil {
		log.Error("User already exists", zap.String("email", req.Email))
		prometheus.RecordAuthError("email_already_exists")
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		prometheus.RecordAuthError("password_hash_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	// Create tenant and admin user atomically
	defer prometheus.TrackDBOperation("insert")(time.Now())
	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	tenant := model.Tenant{
		Name:   req.TenantName,
		Active: true,
	}
	if result := tx.Create(&tenant); result.Error != nil {
		tx.Rollback()
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			prometheus.RecordAuthError("tenant_already_exists")
			return c.JSON(http.StatusConflict, echo.Map{"error": "tenant name already registered"})
		}
		log.Error("Failed to create tenant", zap.Error(result.Error))
		prometheus.RecordAuthError("tenant_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	user := model.User{
		TenantID:  tenant.ID,
		Email:     req.Email,
		Password:  string(hashedPassword),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      model.RoleAdmin,
		Active:    true,
	}
	if result := tx.Create(&user); result.Error != nil {
		tx.Rollback()
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			prometheus.RecordAuthError("email_already_exists")
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		log.Error("Failed to create user", zap.Error(result.Error))
		prometheus.RecordAuthError("user_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit registration", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	token, err := jwtutil.GenerateToken(user.ID, tenant.ID, user.Email, user.Role)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	log.Info("Tenant registered",
		zap.String("tenant_name", tenant.Name),
		zap.String("email", user.Email))

	return c.JSON(http.StatusCreated, echo.Map{
		"token": token,
		"user":  userResponse(&user),
		"tenant": map[string]interface{}{
			"id":   tenant.ID,
			"name": tenant.Name,
		},
	})
}

// Login authenticates a user and issues a JWT carrying the tenant context
func Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		TenantID *uint  `json:"tenant_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	// Find user in database - track DB operation duration
	defer prometheus.TrackDBOperation("query")(time.Now())
	query := database.GetDB().Where("email = ?", req.Email)
	if req.TenantID != nil {
		query = query.Where("tenant_id = ?", *req.TenantID)
	}
	var user model.User
	if result := query.Order("id").First(&user); result.Error != nil {
		log.Error("User not found", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Error("Invalid password", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if !user.Active {
		log.Error("Deactivated user attempted login", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_inactive")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account is deactivated"})
	}

	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, user.TenantID); result.Error != nil || !tenant.Active {
		log.Error("User's tenant is unavailable",
			zap.String("email", req.Email),
			zap.Uint("tenant_id", user.TenantID))
		prometheus.RecordAuthError("tenant_inactive")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "tenant is deactivated"})
	}

	// Record the login time
	now := time.Now()
	if err := database.GetDB().Model(&user).Update("last_login", now).Error; err != nil {
		log.Warn("Failed to update last login", zap.Error(err))
	}

	token, err := jwtutil.GenerateToken(user.ID, user.TenantID, user.Email, user.Role)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	log.Info("User logged in",
		zap.String("email", user.Email),
		zap.Uint("tenant_id", user.TenantID),
		zap.String("role", user.Role))

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"user":  userResponse(&user),
		"tenant": map[string]interface{}{
			"id":   tenant.ID,
			"name": tenant.Name,
		},
	})
}

// Logout acknowledges the client discarding its token. Tokens are stateless,
// so there is nothing to revoke server-side.
func Logout(c echo.Context) error {
	logger.FromContext(c).Info("User logged out",
		zap.Uint("user_id", c.Get("user_id").(uint)))
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// RefreshToken reissues a token for the authenticated user if the account is
// still active
func RefreshToken(c echo.Context) error {
	log := logger.FromContext(c)
	userID := c.Get("user_id").(uint)
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if result := database.GetDB().First(&user, userID); result.Error != nil || !user.Active {
		prometheus.RecordAuthError("user_inactive")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account is deactivated"})
	}

	token, err := jwtutil.GenerateToken(user.ID, tenantID, user.Email, user.Role)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	return c.JSON(http.StatusOK, echo.Map{"token": token})
}

// Me returns the authenticated user's profile with tenant information
func Me(c echo.Context) error {
	userID := c.Get("user_id").(uint)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if result := database.GetDB().First(&user, userID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	var tenant model.Tenant
	database.GetDB().First(&tenant, user.TenantID)

	return c.JSON(http.StatusOK, echo.Map{
		"user": userResponse(&user),
		"tenant": map[string]interface{}{
			"id":     tenant.ID,
			"name":   tenant.Name,
			"active": tenant.Active,
		},
	})
}

// SelectTenant confirms the tenant the client wants to operate in and
// reissues a token for it. Users belong to a single tenant, so any other
// tenant is rejected.
func SelectTenant(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		TenantID uint `json:"tenant_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	tokenTenantID := c.Get("tenant_id").(uint)
	if req.TenantID != tokenTenantID {
		log.Warn("Tenant selection rejected",
			zap.Uint("requested", req.TenantID),
			zap.Uint("token_tenant_id", tokenTenantID))
		prometheus.RecordTenantError(tokenTenantID, "tenant_mismatch")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access to the requested tenant is not allowed"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, req.TenantID); result.Error != nil || !tenant.Active {
		prometheus.RecordTenantError(req.TenantID, "tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	userID := c.Get("user_id").(uint)
	var user model.User
	if result := database.GetDB().First(&user, userID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	token, err := jwtutil.GenerateToken(user.ID, tenant.ID, user.Email, user.Role)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"tenant": map[string]interface{}{
			"id":   tenant.ID,
			"name": tenant.Name,
		},
	})
}

// MyTenants lists the tenants the authenticated user can operate in
func MyTenants(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uint)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, tenantID); result.Error != nil {
		return c.JSON(http.StatusOK, echo.Map{"tenants": []interface{}{}})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"tenants": []map[string]interface{}{
			{
				"id":     tenant.ID,
				"name":   tenant.Name,
				"active": tenant.Active,
			},
		},
	})
}

// RequestPasswordReset creates a single-use reset token for the account.
// The response never reveals whether the email exists.
func RequestPasswordReset(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if result := database.GetDB().Where("email = ? AND active = ?", req.Email, true).Order("id").First(&user); result.Error == nil {
		reset := model.PasswordResetToken{
			UserID:    user.ID,
			Token:     uuid.New().String(),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		if err := database.GetDB().Create(&reset).Error; err != nil {
			log.Error("Failed to create password reset token", zap.Error(err))
		} else {
			// Token delivery is out of band (email); log for the operator
			log.Info("Password reset token issued", zap.Uint("user_id", user.ID))
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "if the email is registered, a reset link has been sent"})
}

// ConfirmPasswordReset consumes a reset token and sets a new password
func ConfirmPasswordReset(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	if !validPassword(req.NewPassword) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "password must be at least 8 characters with a letter and a digit"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var reset model.PasswordResetToken
	result := database.GetDB().
		Where("token = ? AND used = ? AND expires_at > ?", req.Token, false, time.Now()).
		First(&reset)
	if result.Error != nil {
		prometheus.RecordAuthError("invalid_reset_token")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired reset token"})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password reset failed"})
	}

	tx := database.GetDB().Begin()
	if err := tx.Model(&model.User{}).Where("id = ?", reset.UserID).Update("password", string(hashedPassword)).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to update password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password reset failed"})
	}
	if err := tx.Model(&reset).Update("used", true).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to mark reset token used", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password reset failed"})
	}
	if err := tx.Commit().Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password reset failed"})
	}

	log.Info("Password reset completed", zap.Uint("user_id", reset.UserID))
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// AcceptInvitation creates a user account from a pending invitation and
// logs the new user in
func AcceptInvitation(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Token     string `json:"token"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	if !validPassword(req.Password) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "password must be at least 8 characters with a letter and a digit"})
	}

	claims, err := jwtutil.ValidateInvitationToken(req.Token)
	if err != nil {
		prometheus.RecordAuthError("invalid_invitation_token")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired invitation"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var invitation model.Invitation
	result := database.GetDB().
		Where("token = ? AND status = ?", req.Token, model.InvitationStatusPending).
		First(&invitation)
	if result.Error != nil {
		prometheus.RecordAuthError("invalid_invitation_token")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired invitation"})
	}

	if time.Now().After(invitation.ExpiresAt) {
		database.GetDB().Model(&invitation).Update("status", model.InvitationStatusExpired)
		prometheus.RecordAuthError("expired_invitation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired invitation"})
	}

	var existingUser model.User
	if result := database.GetDB().
		Where("tenant_id = ? AND email = ?", claims.TenantID, claims.Email).
		First(&existingUser); result.Error == nil {
		prometheus.RecordAuthError("email_already_exists")
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	user := model.User{
		TenantID:  claims.TenantID,
		Email:     claims.Email,
		Password:  string(hashedPassword),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      claims.Role,
		Active:    true,
	}

	now := time.Now()
	tx := database.GetDB().Begin()
	if result := tx.Create(&user); result.Error != nil {
		tx.Rollback()
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		log.Error("Failed to create user from invitation", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	if err := tx.Model(&invitation).Updates(map[string]interface{}{
		"status":      model.InvitationStatusAccepted,
		"accepted_at": now,
	}).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to mark invitation accepted", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	if err := tx.Commit().Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	token, err := jwtutil.GenerateToken(user.ID, user.TenantID, user.Email, user.Role)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	log.Info("Invitation accepted",
		zap.String("email", user.Email),
		zap.Uint("tenant_id", user.TenantID))

	return c.JSON(http.StatusCreated, echo.Map{
		"token": token,
		"user":  userResponse(&user),
	})
}

// MetricsHandler serves the Prometheus metrics endpoint
func MetricsHandler(c echo.Context) error {
	handler := prometheus.GetPrometheusHandler()
	handler.ServeHTTP(c.Response(), c.Request())
	return nil
}
