// Package authz enforces site-scoped access. Admins see everything;
// regular users only touch resources belonging to their home site.
package authz

import "github.com/gestionequipos/activos-api/internal/models"

// Actor is the authenticated principal a request runs as.
type Actor struct {
	UserID   string
	FullName string
	Admin    bool
	SiteID   *string
}

// FromUser builds an actor from a stored user row.
func FromUser(u *models.User) Actor {
	return Actor{
		UserID:   u.ID,
		FullName: u.FullName,
		Admin:    u.IsAdmin(),
		SiteID:   u.SiteID,
	}
}

// CanAccessSite decides whether the actor may act on a resource that
// resolved to the given site. A non-admin without a home site is denied
// everywhere, and a resource whose site could not be resolved is only
// reachable by admins.
func (a Actor) CanAccessSite(siteID *string) bool {
	if a.Admin {
		return true
	}
	if a.SiteID == nil || siteID == nil {
		return false
	}
	return *a.SiteID == *siteID
}

// Scope restricts list queries. When All is false the query must filter
// by SiteID; a false All with nil SiteID matches nothing.
type Scope struct {
	All    bool
	SiteID *string
}

// ScopeFor computes the list scope the actor is entitled to.
func ScopeFor(a Actor) Scope {
	if a.Admin {
		return Scope{All: true}
	}
	return Scope{SiteID: a.SiteID}
}

// Empty reports whether the scope matches no rows at all.
func (s Scope) Empty() bool {
	return !s.All && s.SiteID == nil
}
