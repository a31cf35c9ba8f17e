package tenantscope

import (
	"testing"

	"timetracker-service/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestTenantScopeFiltersRows(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Client{}))

	require.NoError(t, db.Create(&model.Client{TenantID: 1, Name: "Acme", Active: true}).Error)
	require.NoError(t, db.Create(&model.Client{TenantID: 2, Name: "Globex", Active: true}).Error)

	var clients []model.Client
	require.NoError(t, db.Scopes(Tenant(1)).Find(&clients).Error)
	require.Len(t, clients, 1)
	require.Equal(t, "Acme", clients[0].Name)

	// A row of another tenant is invisible, not forbidden
	var other model.Client
	err = db.Scopes(Tenant(1)).Where("name = ?", "Globex").First(&other).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
