package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestAdminAccessesAnySite(t *testing.T) {
	admin := Actor{UserID: "u-1", Admin: true}

	assert.True(t, admin.CanAccessSite(strPtr("site-1")))
	assert.True(t, admin.CanAccessSite(nil))
}

func TestUserScopedToHomeSite(t *testing.T) {
	user := Actor{UserID: "u-2", SiteID: strPtr("site-1")}

	assert.True(t, user.CanAccessSite(strPtr("site-1")))
	assert.False(t, user.CanAccessSite(strPtr("site-2")))
	assert.False(t, user.CanAccessSite(nil))
}

func TestUserWithoutHomeSiteDeniedEverywhere(t *testing.T) {
	user := Actor{UserID: "u-3"}

	assert.False(t, user.CanAccessSite(strPtr("site-1")))
	assert.False(t, user.CanAccessSite(nil))
}

func TestScopeFor(t *testing.T) {
	admin := ScopeFor(Actor{Admin: true})
	assert.True(t, admin.All)
	assert.False(t, admin.Empty())

	scoped := ScopeFor(Actor{SiteID: strPtr("site-1")})
	assert.False(t, scoped.All)
	assert.Equal(t, "site-1", *scoped.SiteID)
	assert.False(t, scoped.Empty())

	none := ScopeFor(Actor{})
	assert.True(t, none.Empty())
}
