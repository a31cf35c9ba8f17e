// Package tenantscope is the single place tenant filtering happens.
// Every query against tenant-owned tables goes through Tenant, so a row
// belonging to another tenant is indistinguishable from a missing row.
package tenantscope

import "gorm.io/gorm"

// Tenant returns a gorm scope restricting the query to the given tenant
func Tenant(tenantID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}
