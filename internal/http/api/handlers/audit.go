package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/store"
)

// AuditHandler lists the audit trail.
type AuditHandler struct {
	audits *store.AuditStore
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(audits *store.AuditStore) *AuditHandler {
	return &AuditHandler{audits: audits}
}

// List returns audit rows filtered by action, entity_type, user_id and since (RFC3339).
func (h *AuditHandler) List(c *gin.Context) {
	userID, okUser := parseUintQuery(c, "user_id")
	if !okUser {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}
	var since time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, errParse := time.Parse(time.RFC3339, raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		since = parsed
	}
	rows, total, errList := h.audits.List(c.Request.Context(), store.AuditFilter{
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
		UserID:     userID,
		Since:      since,
		Page:       pageFromQuery(c),
	})
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list audit log failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": rows, "total": total})
}

// recordAudit writes entry with the caller's identity and client details filled in.
func recordAudit(c *gin.Context, audits *store.AuditStore, entry store.AuditEntry) {
	if audits == nil {
		return
	}
	if entry.UserID == 0 {
		if identity, ok := CurrentIdentity(c); ok {
			entry.UserID = identity.UserID
			if entry.Username == "" {
				entry.Username = identity.Username
			}
		}
	}
	entry.IPAddress = c.ClientIP()
	entry.UserAgent = c.Request.UserAgent()
	audits.Record(c.Request.Context(), entry)
}
