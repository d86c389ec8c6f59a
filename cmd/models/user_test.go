package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdminHasPermission(t *testing.T) {
	admin := Admin{
		Role:        "admin",
		Permissions: "manage_users, manage_signals",
	}

	assert.True(t, admin.HasPermission("manage_users"))
	assert.True(t, admin.HasPermission("manage_signals"))
	assert.False(t, admin.HasPermission("manage_admins"))
	assert.False(t, admin.HasPermission(""))

	super := Admin{Role: "superadmin"}
	assert.True(t, super.HasPermission("manage_admins"))
	assert.True(t, super.HasPermission("anything_at_all"))
}
