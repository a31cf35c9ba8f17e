package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"timetracker-service/internal/model"
	"timetracker-service/pkg/database"
	"timetracker-service/pkg/jwtutil"
	"timetracker-service/pkg/logger"
	"timetracker-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthMiddleware validates the JWT token from the Authorization header
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		// Get the Authorization header
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Error("Missing Authorization header")
			prometheus.RecordAuthError("missing_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
		}

		// Check if it's a Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Error("Invalid Authorization header format")
			prometheus.RecordAuthError("invalid_auth_format")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
		}

		// Extract the token
		tokenString := parts[1]

		// Validate the token
		claims, err := jwtutil.ValidateToken(tokenString)
		if err != nil {
			log.Error("Invalid JWT token", zap.Error(err))
			prometheus.RecordAuthError("invalid_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		}

		// Store user info in context for later use
		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("tenant_id", claims.TenantID)
		c.Set("user_role", claims.Role)

		log.Debug("Request authenticated",
			zap.Uint("user_id", claims.UserID),
			zap.Uint("tenant_id", claims.TenantID),
			zap.String("role", claims.Role))

		// Token is valid, proceed with the request
		return next(c)
	}
}

// RequireTenantContext resolves the tenant for the request and verifies it is
// usable. Clients may send an X-Tenant-ID header; it must match the token's
// tenant, otherwise the request is rejected. The resolved tenant must exist
// and be active.
func RequireTenantContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		tenantID, ok := c.Get("tenant_id").(uint)
		if !ok || tenantID == 0 {
			log.Error("No tenant context in authenticated request")
			prometheus.RecordAuthError("missing_tenant_context")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "no tenant context"})
		}

		// An explicit tenant header must agree with the token
		if header := c.Request().Header.Get("X-Tenant-ID"); header != "" {
			requested, err := strconv.ParseUint(header, 10, 32)
			if err != nil || uint(requested) != tenantID {
				log.Warn("X-Tenant-ID header does not match token tenant",
					zap.String("header", header),
					zap.Uint("token_tenant_id", tenantID))
				prometheus.RecordTenantError(tenantID, "tenant_mismatch")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "access to the requested tenant is not allowed"})
			}
		}

		defer prometheus.TrackDBOperation("query")(time.Now())

		var tenant model.Tenant
		if err := database.GetDB().First(&tenant, tenantID).Error; err != nil {
			log.Error("Token tenant not found", zap.Uint("tenant_id", tenantID))
			prometheus.RecordTenantError(tenantID, "tenant_not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
		}

		if !tenant.Active {
			log.Warn("Token tenant is deactivated", zap.Uint("tenant_id", tenantID))
			prometheus.RecordTenantError(tenantID, "tenant_inactive")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
		}

		c.Set("tenant_name", tenant.Name)
		return next(c)
	}
}

// RequireAdmin rejects requests from non-admin users before any data access
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		role, ok := c.Get("user_role").(string)
		if !ok || role != model.RoleAdmin {
			logger.FromContext(c).Warn("Admin-only endpoint rejected",
				zap.String("role", role),
				zap.String("path", c.Path()))
			prometheus.RecordAuthError("forbidden")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "admin role required"})
		}
		return next(c)
	}
}
