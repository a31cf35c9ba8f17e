package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"timetracker-service/internal/middleware"
	"timetracker-service/internal/model"
	"timetracker-service/pkg/config"
	"timetracker-service/pkg/database"
	"timetracker-service/pkg/jwtutil"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	jwtutil.Initialize(&config.JWTConfig{
		SigningKey:        "test-signing-key",
		ExpirationHours:   1,
		InvitationExpDays: 7,
	})
}

// setupServer wires the real route table against an in-memory database
func setupServer(t *testing.T) *echo.Echo {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	database.DB = db

	e := echo.New()
	e.Validator = NewValidator()

	e.GET("/health", HealthCheck)

	auth := e.Group("/auth")
	auth.POST("/register", Register)
	auth.POST("/login", Login)
	auth.POST("/password-reset-request", RequestPasswordReset)
	auth.POST("/password-reset-confirm", ConfirmPasswordReset)
	auth.POST("/accept-invitation", AcceptInvitation)

	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)

	authAPI := api.Group("/auth")
	authAPI.POST("/logout", Logout)
	authAPI.POST("/refresh", RefreshToken)
	authAPI.GET("/me", Me)
	authAPI.POST("/select-tenant", SelectTenant)
	authAPI.GET("/tenants", MyTenants)

	tenants := api.Group("/tenants")
	tenants.Use(middleware.RequireTenantContext)
	tenants.GET("", ListTenants)
	tenants.GET("/:id", GetTenant)
	tenants.POST("", CreateTenant, middleware.RequireAdmin)
	tenants.PUT("/:id", UpdateTenant, middleware.RequireAdmin)
	tenants.POST("/:id/deactivate", DeactivateTenant, middleware.RequireAdmin)
	tenants.POST("/:id/invite", InviteUser, middleware.RequireAdmin)
	tenants.GET("/:id/users", ListTenantUsers, middleware.RequireAdmin)
	tenants.PUT("/:id/users/:user_id/role", UpdateTenantUserRole, middleware.RequireAdmin)
	tenants.DELETE("/:id/users/:user_id", RemoveTenantUser, middleware.RequireAdmin)

	users := api.Group("/users")
	users.Use(middleware.RequireTenantContext)
	users.GET("/me", GetMyProfile)
	users.PUT("/me", UpdateMyProfile)
	users.POST("/me/change-password", ChangePassword)
	users.POST("", CreateUser, middleware.RequireAdmin)
	users.GET("", ListUsers, middleware.RequireAdmin)
	users.GET("/:id", GetUser)
	users.PUT("/:id", UpdateUser)
	users.PUT("/:id/role", UpdateUserRole, middleware.RequireAdmin)
	users.POST("/:id/deactivate", DeactivateUser, middleware.RequireAdmin)

	clients := api.Group("/clients")
	clients.Use(middleware.RequireTenantContext)
	clients.POST("", CreateClient)
	clients.GET("", ListClients)
	clients.GET("/:id", GetClient)
	clients.PUT("/:id", UpdateClient)
	clients.POST("/:id/deactivate", DeactivateClient)
	clients.DELETE("/:id", DeleteClient)
	clients.GET("/:id/projects", ListClientProjects)
	clients.GET("/:id/time-summary", ClientTimeSummary)

	projects := api.Group("/projects")
	projects.Use(middleware.RequireTenantContext)
	projects.POST("", CreateProject)
	projects.GET("", ListProjects)
	projects.GET("/:id", GetProject)
	projects.PUT("/:id", UpdateProject)
	projects.GET("/:id/technologies", ListProjectTechnologies)
	projects.POST("/:id/technologies/:technology_id", AssignTechnology)
	projects.DELETE("/:id/technologies/:technology_id", RemoveTechnology)

	technologies := api.Group("/technologies")
	technologies.Use(middleware.RequireTenantContext)
	technologies.POST("", CreateTechnology)
	technologies.GET("", ListTechnologies)
	technologies.GET("/:id", GetTechnology)
	technologies.PUT("/:id", UpdateTechnology)
	technologies.DELETE("/:id", DeleteTechnology)

	timeEntries := api.Group("/time-entries")
	timeEntries.Use(middleware.RequireTenantContext)
	timeEntries.POST("", CreateTimeEntry)
	timeEntries.GET("", ListTimeEntries)
	timeEntries.GET("/:id", GetTimeEntry)
	timeEntries.PUT("/:id", UpdateTimeEntry)
	timeEntries.DELETE("/:id", DeleteTimeEntry)

	timer := api.Group("/timer")
	timer.Use(middleware.RequireTenantContext)
	timer.POST("/start", StartTimer)
	timer.POST("/stop", StopTimer)
	timer.GET("/current", CurrentTimer)

	dashboard := api.Group("/dashboard")
	dashboard.Use(middleware.RequireTenantContext)
	dashboard.GET("", Dashboard)

	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// seedTenant creates a tenant with an admin and a regular user and returns
// tokens for both
func seedTenant(t *testing.T, name string) (tenant model.Tenant, adminToken, userToken string) {
	t.Helper()
	tenant = model.Tenant{Name: name, Active: true}
	require.NoError(t, database.DB.Create(&tenant).Error)

	hash, err := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.MinCost)
	require.NoError(t, err)

	admin := model.User{
		TenantID: tenant.ID,
		Email:    fmt.Sprintf("admin@%s.test", strings.ToLower(name)),
		Password: string(hash),
		Role:     model.RoleAdmin,
		Active:   true,
	}
	require.NoError(t, database.DB.Create(&admin).Error)

	member := model.User{
		TenantID: tenant.ID,
		Email:    fmt.Sprintf("member@%s.test", strings.ToLower(name)),
		Password: string(hash),
		Role:     model.RoleUser,
		Active:   true,
	}
	require.NoError(t, database.DB.Create(&member).Error)

	adminToken, err = jwtutil.GenerateToken(admin.ID, tenant.ID, admin.Email, admin.Role)
	require.NoError(t, err)
	userToken, err = jwtutil.GenerateToken(member.ID, tenant.ID, member.Email, member.Role)
	require.NoError(t, err)
	return tenant, adminToken, userToken
}

func seedProject(t *testing.T, tenantID uint, clientName, projectName string, rate string) model.Project {
	t.Helper()
	client := model.Client{TenantID: tenantID, Name: clientName, Active: true}
	require.NoError(t, database.DB.Create(&client).Error)

	project := model.Project{
		TenantID: tenantID,
		ClientID: client.ID,
		Name:     projectName,
		Status:   model.ProjectStatusActive,
		Active:   true,
	}
	if rate != "" {
		d, err := decimal.NewFromString(rate)
		require.NoError(t, err)
		project.HourlyRate = &d
	}
	require.NoError(t, database.DB.Create(&project).Error)
	return project
}

func TestRegisterCreatesTenantAndAdmin(t *testing.T) {
	e := setupServer(t)

	rec := doJSON(t, e, http.MethodPost, "/auth/register", "",
		`{"tenant_name":"Acme","email":"owner@acme.test","password":"password1","first_name":"Ada"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "admin", user["role"])

	// Same tenant name again conflicts
	rec = doJSON(t, e, http.MethodPost, "/auth/register", "",
		`{"tenant_name":"Acme","email":"other@acme.test","password":"password1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Same email again conflicts
	rec = doJSON(t, e, http.MethodPost, "/auth/register", "",
		`{"tenant_name":"Other","email":"owner@acme.test","password":"password1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	e := setupServer(t)

	rec := doJSON(t, e, http.MethodPost, "/auth/register", "",
		`{"tenant_name":"Acme","email":"owner@acme.test","password":"short1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/auth/register", "",
		`{"tenant_name":"Acme","email":"owner@acme.test","password":"lettersonly"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLogin(t *testing.T) {
	e := setupServer(t)

	rec := doJSON(t, e, http.MethodPost, "/auth/register", "",
		`{"tenant_name":"Acme","email":"owner@acme.test","password":"password1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/auth/login", "",
		`{"email":"owner@acme.test","password":"password1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["token"])

	// Wrong password and unknown email produce the same answer
	rec = doJSON(t, e, http.MethodPost, "/auth/login", "",
		`{"email":"owner@acme.test","password":"wrongpass1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeBody(t, rec)["error"])

	rec = doJSON(t, e, http.MethodPost, "/auth/login", "",
		`{"email":"nobody@acme.test","password":"password1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeBody(t, rec)["error"])
}

func TestTimerLifecycle(t *testing.T) {
	e := setupServer(t)
	tenant, _, userToken := seedTenant(t, "Acme")
	project := seedProject(t, tenant.ID, "Initech", "Website", "60")

	// Start
	rec := doJSON(t, e, http.MethodPost, "/api/timer/start", userToken,
		fmt.Sprintf(`{"project_id":%d,"description":"work"}`, project.ID))
	require.Equal(t, http.StatusCreated, rec.Code)
	var entry model.TimeEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.True(t, entry.IsRunning)
	assert.Nil(t, entry.EndTime)
	require.NotNil(t, entry.HourlyRate)
	assert.True(t, entry.HourlyRate.Equal(decimal.NewFromInt(60)))

	// Second start conflicts
	rec = doJSON(t, e, http.MethodPost, "/api/timer/start", userToken,
		fmt.Sprintf(`{"project_id":%d}`, project.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Current returns the running entry
	rec = doJSON(t, e, http.MethodGet, "/api/timer/current", userToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Stop closes it and derives fields
	rec = doJSON(t, e, http.MethodPost, "/api/timer/stop", userToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stopped model.TimeEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stopped))
	assert.False(t, stopped.IsRunning)
	require.NotNil(t, stopped.EndTime)
	require.NotNil(t, stopped.DurationMinutes)
	require.NotNil(t, stopped.Amount)

	// No running timer left
	rec = doJSON(t, e, http.MethodPost, "/api/timer/stop", userToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, e, http.MethodGet, "/api/timer/current", userToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTimerStartUnknownProject(t *testing.T) {
	e := setupServer(t)
	_, _, userToken := seedTenant(t, "Acme")

	rec := doJSON(t, e, http.MethodPost, "/api/timer/start", userToken, `{"project_id":999}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRunningEntryFreesTimer(t *testing.T) {
	e := setupServer(t)
	tenant, _, userToken := seedTenant(t, "Acme")
	project := seedProject(t, tenant.ID, "Initech", "Website", "60")

	rec := doJSON(t, e, http.MethodPost, "/api/timer/start", userToken,
		fmt.Sprintf(`{"project_id":%d}`, project.ID))
	require.Equal(t, http.StatusCreated, rec.Code)
	var entry model.TimeEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))

	rec = doJSON(t, e, http.MethodDelete, fmt.Sprintf("/api/time-entries/%d", entry.ID), userToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, e, http.MethodGet, "/api/timer/current", userToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The deleted entry must not keep holding the running slot
	rec = doJSON(t, e, http.MethodPost, "/api/timer/start", userToken,
		fmt.Sprintf(`{"project_id":%d}`, project.ID))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRunningTimerUniqueIndex(t *testing.T) {
	setupServer(t)
	tenant, _, _ := seedTenant(t, "Acme")
	project := seedProject(t, tenant.ID, "Initech", "Website", "60")

	var admin, member model.User
	require.NoError(t, database.DB.Where("role = ?", model.RoleAdmin).First(&admin).Error)
	require.NoError(t, database.DB.Where("role = ?", model.RoleUser).First(&member).Error)

	// Two running entries for one user violate the index even without the
	// handler pre-check in the way
	first := model.TimeEntry{
		TenantID: tenant.ID, UserID: member.ID, ProjectID: project.ID,
		StartTime: time.Now(), IsRunning: true,
	}
	require.NoError(t, database.DB.Create(&first).Error)

	second := model.TimeEntry{
		TenantID: tenant.ID, UserID: member.ID, ProjectID: project.ID,
		StartTime: time.Now(), IsRunning: true,
	}
	err := database.DB.Create(&second).Error
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// Another user's running entry is unaffected
	other := model.TimeEntry{
		TenantID: tenant.ID, UserID: admin.ID, ProjectID: project.ID,
		StartTime: time.Now(), IsRunning: true,
	}
	assert.NoError(t, database.DB.Create(&other).Error)
}

func TestStopTimerFinalDescription(t *testing.T) {
	e := setupServer(t)
	tenant, _, userToken := seedTenant(t, "Acme")
	project := seedProject(t, tenant.ID, "Initech", "Website", "60")

	rec := doJSON(t, e, http.MethodPost, "/api/timer/start", userToken,
		fmt.Sprintf(`{"project_id":%d,"description":"draft"}`, project.ID))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/api/timer/stop", userToken, `{"description":"wrote the report"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var stopped model.TimeEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stopped))
	assert.False(t, stopped.IsRunning)
	assert.Equal(t, "wrote the report", stopped.Description)
}

func TestManualEntryDerivesDurationAndAmount(t *testing.T) {
	e := setupServer(t)
	tenant, _, userToken := seedTenant(t, "Acme")
	project := seedProject(t, tenant.ID, "Initech", "Website", "60")

	// 90 minutes at 60/h is 90.00
	rec := doJSON(t, e, http.MethodPost, "/api/time-entries", userToken,
		fmt.Sprintf(`{"project_id":%d,"start_time":"2025-06-02T10:00:00Z","end_time":"2025-06-02T11:30:00Z"}`, project.ID))
	require.Equal(t, http.StatusCreated, rec.Code)

	var entry model.TimeEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	require.NotNil(t, entry.DurationMinutes)
	assert.Equal(t, 90, *entry.DurationMinutes)
	require.NotNil(t, entry.Amount)
	assert.True(t, entry.Amount.Equal(decimal.NewFromInt(90)), "amount was %s", entry.Amount)
	assert.False(t, entry.IsRunning)
}

func TestUpdateEntryRecomputesDerivedFields(t *testing.T) {
	e := setupServer(t)
	tenant, _, userToken := seedTenant(t, "Acme")
	project := seedProject(t, tenant.ID, "Initech", "Website", "60")

	rec := doJSON(t, e, http.MethodPost, "/api/time-entries", userToken,
		fmt.Sprintf(`{"project_id":%d,"start_time":"2025-06-02T10:00:00Z","end_time":"2025-06-02T11:30:00Z"}`, project.ID))
	require.Equal(t, http.StatusCreated, rec.Code)
	var entry model.TimeEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))

	// Extending the entry to 120 minutes doubles nothing but recomputes both fields
	rec = doJSON(t, e, http.MethodPut, fmt.Sprintf("/api/time-entries/%d", entry.ID), userToken,
		`{"end_time":"2025-06-02T12:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated model.TimeEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.NotNil(t, updated.DurationMinutes)
	assert.Equal(t, 120, *updated.DurationMinutes)
	require.NotNil(t, updated.Amount)
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(120)))
}

func TestAggregateTotals(t *testing.T) {
	e := setupServer(t)
	tenant, _, userToken := seedTenant(t, "Acme")
	project := seedProject(t, tenant.ID, "Initech", "Website", "")

	// 90 + 45 minutes is 2.25 hours
	rec := doJSON(t, e, http.MethodPost, "/api/time-entries", userToken,
		fmt.Sprintf(`{"project_id":%d,"start_time":"2025-06-02T10:00:00Z","end_time":"2025-06-02T11:30:00Z"}`, project.ID))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, e, http.MethodPost, "/api/time-entries", userToken,
		fmt.Sprintf(`{"project_id":%d,"start_time":"2025-06-03T10:00:00Z","end_time":"2025-06-03T10:45:00Z"}`, project.ID))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, e, http.MethodGet, "/api/time-entries", userToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.InDelta(t, 2.25, body["total_hours"].(float64), 0.0001)
	assert.InDelta(t, 2.25, body["billable_hours"].(float64), 0.0001)
}

func TestCrossTenantIsolation(t *testing.T) {
	e := setupServer(t)
	tenantA, _, tokenA := seedTenant(t, "Acme")
	_, _, tokenB := seedTenant(t, "Globex")

	client := model.Client{TenantID: tenantA.ID, Name: "Initech", Active: true}
	require.NoError(t, database.DB.Create(&client).Error)

	// Owner sees it
	rec := doJSON(t, e, http.MethodGet, fmt.Sprintf("/api/clients/%d", client.ID), tokenA, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Another tenant gets not found, never forbidden
	rec = doJSON(t, e, http.MethodGet, fmt.Sprintf("/api/clients/%d", client.ID), tokenB, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, e, http.MethodPut, fmt.Sprintf("/api/clients/%d", client.ID), tokenB, `{"name":"Stolen"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, e, http.MethodDelete, fmt.Sprintf("/api/clients/%d", client.ID), tokenB, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDuplicateClientName(t *testing.T) {
	e := setupServer(t)
	_, _, userToken := seedTenant(t, "Acme")

	rec := doJSON(t, e, http.MethodPost, "/api/clients", userToken, `{"name":"Initech"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, e, http.MethodPost, "/api/clients", userToken, `{"name":"Initech"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDuplicateClientNameAllowedAcrossTenants(t *testing.T) {
	e := setupServer(t)
	_, _, tokenA := seedTenant(t, "Acme")
	_, _, tokenB := seedTenant(t, "Globex")

	rec := doJSON(t, e, http.MethodPost, "/api/clients", tokenA, `{"name":"Initech"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, e, http.MethodPost, "/api/clients", tokenB, `{"name":"Initech"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAdminOnlyRoutesRejectMembers(t *testing.T) {
	e := setupServer(t)
	tenant, adminToken, userToken := seedTenant(t, "Acme")

	rec := doJSON(t, e, http.MethodPost, "/api/users", userToken,
		`{"email":"new@acme.test","password":"password1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, e, http.MethodGet, "/api/users", userToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, e, http.MethodPost, fmt.Sprintf("/api/tenants/%d/invite", tenant.ID), userToken,
		`{"email":"new@acme.test"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The admin passes
	rec = doJSON(t, e, http.MethodPost, "/api/users", adminToken,
		`{"email":"new@acme.test","password":"password1"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestDeleteClientWithProjects(t *testing.T) {
	e := setupServer(t)
	tenant, _, userToken := seedTenant(t, "Acme")
	project := seedProject(t, tenant.ID, "Initech", "Website", "")

	rec := doJSON(t, e, http.MethodDelete, fmt.Sprintf("/api/clients/%d", project.ClientID), userToken, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// An empty client can be deleted
	empty := model.Client{TenantID: tenant.ID, Name: "Empty Co", Active: true}
	require.NoError(t, database.DB.Create(&empty).Error)
	rec = doJSON(t, e, http.MethodDelete, fmt.Sprintf("/api/clients/%d", empty.ID), userToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProjectRequiresOwnClient(t *testing.T) {
	e := setupServer(t)
	tenantA, _, tokenA := seedTenant(t, "Acme")
	_, _, tokenB := seedTenant(t, "Globex")

	client := model.Client{TenantID: tenantA.ID, Name: "Initech", Active: true}
	require.NoError(t, database.DB.Create(&client).Error)

	// Another tenant cannot hang a project on it
	rec := doJSON(t, e, http.MethodPost, "/api/projects", tokenB,
		fmt.Sprintf(`{"client_id":%d,"name":"Sneaky"}`, client.ID))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/api/projects", tokenA,
		fmt.Sprintf(`{"client_id":%d,"name":"Website"}`, client.ID))
	require.Equal(t, http.StatusCreated, rec.Code)

	// Duplicate project name for the same client conflicts
	rec = doJSON(t, e, http.MethodPost, "/api/projects", tokenA,
		fmt.Sprintf(`{"client_id":%d,"name":"Website"}`, client.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTechnologyAssignment(t *testing.T) {
	e := setupServer(t)
	tenant, _, userToken := seedTenant(t, "Acme")
	project := seedProject(t, tenant.ID, "Initech", "Website", "")

	rec := doJSON(t, e, http.MethodPost, "/api/technologies", userToken, `{"name":"Go","category":"language"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var tech model.Technology
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tech))

	path := fmt.Sprintf("/api/projects/%d/technologies/%d", project.ID, tech.ID)
	rec = doJSON(t, e, http.MethodPost, path, userToken, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, e, http.MethodPost, path, userToken, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, e, http.MethodGet, fmt.Sprintf("/api/projects/%d/technologies", project.ID), userToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["technologies"], 1)

	rec = doJSON(t, e, http.MethodDelete, path, userToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, e, http.MethodDelete, path, userToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboard(t *testing.T) {
	e := setupServer(t)
	tenant, _, userToken := seedTenant(t, "Acme")
	project := seedProject(t, tenant.ID, "Initech", "Website", "60")

	// A closed 90-minute entry anchored to today
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 1, 0, 0, now.Location())
	end := start.Add(90 * time.Minute)
	rec := doJSON(t, e, http.MethodPost, "/api/time-entries", userToken,
		fmt.Sprintf(`{"project_id":%d,"start_time":%q,"end_time":%q}`,
			project.ID, start.Format(time.RFC3339), end.Format(time.RFC3339)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, e, http.MethodGet, "/api/dashboard", userToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.InDelta(t, 1.5, body["today_hours"].(float64), 0.0001)
	assert.InDelta(t, 1.5, body["month_hours"].(float64), 0.0001)
	assert.Nil(t, body["running_timer"])
	assert.Len(t, body["recent_entries"], 1)
	assert.Len(t, body["by_project"], 1)
	assert.Len(t, body["by_client"], 1)
}

func TestClientTimeSummary(t *testing.T) {
	e := setupServer(t)
	tenant, _, userToken := seedTenant(t, "Acme")
	project := seedProject(t, tenant.ID, "Initech", "Website", "60")

	rec := doJSON(t, e, http.MethodPost, "/api/time-entries", userToken,
		fmt.Sprintf(`{"project_id":%d,"start_time":"2025-06-02T10:00:00Z","end_time":"2025-06-02T11:30:00Z"}`, project.ID))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, e, http.MethodGet, fmt.Sprintf("/api/clients/%d/time-summary", project.ClientID), userToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.InDelta(t, 1.5, body["total_hours"].(float64), 0.0001)
	assert.Equal(t, "90", body["total_amount"])
	assert.Len(t, body["projects"], 1)
}

func TestInvitationFlow(t *testing.T) {
	e := setupServer(t)
	tenant, adminToken, _ := seedTenant(t, "Acme")

	rec := doJSON(t, e, http.MethodPost, fmt.Sprintf("/api/tenants/%d/invite", tenant.ID), adminToken,
		`{"email":"new@acme.test","role":"user"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, token)

	rec = doJSON(t, e, http.MethodPost, "/auth/accept-invitation", "",
		fmt.Sprintf(`{"token":%q,"password":"password1","first_name":"New"}`, token))
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "new@acme.test", body["user"].(map[string]interface{})["email"])

	// An invitation is single use
	rec = doJSON(t, e, http.MethodPost, "/auth/accept-invitation", "",
		fmt.Sprintf(`{"token":%q,"password":"password1"}`, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	e := setupServer(t)
	seedTenant(t, "Acme")

	rec := doJSON(t, e, http.MethodPost, "/auth/password-reset-request", "",
		`{"email":"admin@acme.test"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Unknown email gets the same answer
	rec = doJSON(t, e, http.MethodPost, "/auth/password-reset-request", "",
		`{"email":"nobody@acme.test"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var reset model.PasswordResetToken
	require.NoError(t, database.DB.First(&reset).Error)

	rec = doJSON(t, e, http.MethodPost, "/auth/password-reset-confirm", "",
		fmt.Sprintf(`{"token":%q,"new_password":"newpass99"}`, reset.Token))
	require.Equal(t, http.StatusOK, rec.Code)

	// The token is spent
	rec = doJSON(t, e, http.MethodPost, "/auth/password-reset-confirm", "",
		fmt.Sprintf(`{"token":%q,"new_password":"another99"}`, reset.Token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The new password works
	rec = doJSON(t, e, http.MethodPost, "/auth/login", "",
		`{"email":"admin@acme.test","password":"newpass99"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSelectTenantRejectsForeignTenant(t *testing.T) {
	e := setupServer(t)
	_, _, tokenA := seedTenant(t, "Acme")
	tenantB, _, _ := seedTenant(t, "Globex")

	rec := doJSON(t, e, http.MethodPost, "/api/auth/select-tenant", tokenA,
		fmt.Sprintf(`{"tenant_id":%d}`, tenantB.ID))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeactivatedUserCannotLogin(t *testing.T) {
	e := setupServer(t)
	tenant, adminToken, _ := seedTenant(t, "Acme")

	var member model.User
	require.NoError(t, database.DB.Where("tenant_id = ? AND role = ?", tenant.ID, model.RoleUser).First(&member).Error)

	rec := doJSON(t, e, http.MethodPost, fmt.Sprintf("/api/users/%d/deactivate", member.ID), adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/auth/login", "",
		fmt.Sprintf(`{"email":%q,"password":"password1"}`, member.Email))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
