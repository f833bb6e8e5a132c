package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/store"
)

// identityContextKey holds the authenticated security.Identity on the gin context.
const identityContextKey = "identity"

// SetIdentity stores the caller identity for downstream handlers.
func SetIdentity(c *gin.Context, identity security.Identity) {
	c.Set(identityContextKey, identity)
	c.Set("userID", identity.UserID)
	c.Set("role", identity.Role.String())
}

// CurrentIdentity returns the identity set by the auth middleware.
func CurrentIdentity(c *gin.Context) (security.Identity, bool) {
	raw, ok := c.Get(identityContextKey)
	if !ok {
		return security.Identity{}, false
	}
	identity, ok := raw.(security.Identity)
	if !ok || !identity.Valid() {
		return security.Identity{}, false
	}
	return identity, true
}

// parseIDParam parses a positive uint64 path parameter.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// parseUintQuery parses an optional uint64 query value; empty means zero.
func parseUintQuery(c *gin.Context, name string) (uint64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, true
	}
	value, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil {
		return 0, false
	}
	return value, true
}

// pageFromQuery reads page and page_size, leaving bad values to the store defaults.
func pageFromQuery(c *gin.Context) store.Page {
	page, _ := strconv.Atoi(strings.TrimSpace(c.Query("page")))
	size, _ := strconv.Atoi(strings.TrimSpace(c.Query("page_size")))
	return store.Page{Page: page, PageSize: size}
}
