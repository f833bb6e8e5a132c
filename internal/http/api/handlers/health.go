package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ConnectionCounter reports live realtime connections.
type ConnectionCounter interface {
	Len() int
}

// HealthHandler reports database reachability.
type HealthHandler struct {
	db          *gorm.DB
	connections ConnectionCounter
}

// NewHealthHandler constructs a HealthHandler. connections may be nil.
func NewHealthHandler(db *gorm.DB, connections ConnectionCounter) *HealthHandler {
	return &HealthHandler{db: db, connections: connections}
}

// Healthz pings the database and reports live connection count.
func (h *HealthHandler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "database": "ok"}

	sqlDB, errDB := h.db.DB()
	if errDB == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		errDB = sqlDB.PingContext(ctx)
		cancel()
	}
	if errDB != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = "unreachable"
	}
	if h.connections != nil {
		body["realtime_connections"] = h.connections.Len()
	}
	c.JSON(status, body)
}
