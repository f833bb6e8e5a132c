// Package api registers the HTTP routes and their auth middleware.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/auth"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/challenge"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/http/api/handlers"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/http/api/permissions"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/ratelimit"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/realtime"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/store"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dependencies are the services the routes are wired to.
type Dependencies struct {
	DB           *gorm.DB
	Tokens       *security.TokenIssuer
	Verifier     *auth.Verifier
	Challenges   *challenge.Manager
	Limits       *ratelimit.Manager
	Users        *store.UserStore
	Applications *store.ApplicationStore
	ErrorLogs    *store.ErrorLogStore
	Alerts       *store.AlertStore
	Audits       *store.AuditStore
	Registry     *realtime.Registry
	Hub          *realtime.Hub
}

// RegisterRoutes registers all routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, deps Dependencies) {
	if r == nil || deps.DB == nil {
		return
	}

	var connections handlers.ConnectionCounter
	if deps.Registry != nil {
		connections = deps.Registry
	}
	healthHandler := handlers.NewHealthHandler(deps.DB, connections)
	r.GET("/healthz", healthHandler.Healthz)

	v0 := r.Group("/v0")

	authHandler := handlers.NewAuthHandler(deps.Verifier, deps.Challenges, deps.Tokens, deps.Users, deps.Limits, deps.Audits)
	v0.POST("/auth/login", authHandler.Login)
	v0.POST("/auth/otp/verify", authHandler.VerifyOTP)
	v0.POST("/auth/otp/resend", authHandler.ResendOTP)

	ingestHandler := handlers.NewIngestHandler(deps.ErrorLogs)
	v0.POST("/ingest/errors", ingestHandler.Ingest)
	v0.POST("/ingest/errors/bulk", ingestHandler.IngestBulk)

	if deps.Hub != nil {
		v0.GET("/realtime", deps.Hub.Handle)
	}

	selfAuthed := v0.Group("")
	selfAuthed.Use(authMiddleware(deps.Tokens, deps.Users))
	selfAuthed.GET("/auth/me", authHandler.Me)
	selfAuthed.POST("/auth/logout", authHandler.Logout)
	selfAuthed.GET("/auth/2fa/status", authHandler.TwoFactorStatus)
	selfAuthed.POST("/auth/2fa/enable", authHandler.EnableTwoFactor)
	selfAuthed.POST("/auth/2fa/disable", authHandler.DisableTwoFactor)

	authed := v0.Group("")
	authed.Use(authMiddleware(deps.Tokens, deps.Users))
	authed.Use(permissionMiddleware())

	errorLogHandler := handlers.NewErrorLogHandler(deps.ErrorLogs)
	authed.GET("/errors", errorLogHandler.List)
	authed.POST("/errors/:id/resolve", errorLogHandler.Resolve)

	alertHandler := handlers.NewAlertHandler(deps.Alerts)
	authed.POST("/alerts", alertHandler.Create)
	authed.GET("/alerts", alertHandler.List)
	authed.POST("/alerts/:id/resolve", alertHandler.Resolve)

	applicationHandler := handlers.NewApplicationHandler(deps.Applications)
	authed.POST("/applications", applicationHandler.Create)
	authed.GET("/applications", applicationHandler.List)
	authed.POST("/applications/:id/pause", applicationHandler.Pause)
	authed.POST("/applications/:id/resume", applicationHandler.Resume)

	userHandler := handlers.NewUserHandler(deps.Users, deps.Audits)
	authed.POST("/admin/users", userHandler.Create)
	authed.GET("/admin/users", userHandler.List)
	authed.POST("/admin/users/:id/disable", userHandler.Disable)
	authed.POST("/admin/users/:id/enable", userHandler.Enable)
	authed.PUT("/admin/users/:id/two-factor", userHandler.SetTwoFactor)
	authed.PUT("/admin/users/:id/role", userHandler.SetRole)

	settingHandler := handlers.NewSettingHandler(deps.DB)
	authed.GET("/admin/settings", settingHandler.List)
	authed.PUT("/admin/settings", settingHandler.Upsert)
	authed.GET("/admin/settings/two-factor", settingHandler.GetTwoFactor)
	authed.PUT("/admin/settings/two-factor", settingHandler.SetTwoFactor)
	authed.GET("/admin/permissions", settingHandler.Permissions)

	auditHandler := handlers.NewAuditHandler(deps.Audits)
	authed.GET("/admin/audit", auditHandler.List)
}

// authMiddleware accepts only Authorization: Bearer tokens. The access_token
// query parameter is reserved for the realtime upgrade.
func authMiddleware(tokens *security.TokenIssuer, users *store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token, ok := security.BearerToken(authHeader)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		identity, errToken := tokens.Validate(token)
		if errToken != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		user, errFind := users.FindByID(c.Request.Context(), identity.UserID)
		if errFind != nil {
			if errors.Is(errFind, store.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
				return
			}
			log.WithError(errFind).Error("api: load user failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}
		// Role changes apply without waiting for the token to expire.
		if role, okRole := security.ParseRole(user.Role); okRole {
			identity.Role = role
		}

		handlers.SetIdentity(c, identity)
		c.Next()
	}
}

// permissionMiddleware checks the matched route against the role capability table.
func permissionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := handlers.CurrentIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		key := permissions.Key(c.Request.Method, c.FullPath())
		if !permissions.Allowed(identity.Role, key) {
			log.WithFields(log.Fields{"user_id": identity.UserID, "role": identity.Role.String(), "permission": key}).Debug("api: permission denied")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
