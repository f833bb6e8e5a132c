package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/store"
	log "github.com/sirupsen/logrus"
)

// ErrorLogHandler lists and resolves stored errors.
type ErrorLogHandler struct {
	errors *store.ErrorLogStore
}

// NewErrorLogHandler constructs an ErrorLogHandler.
func NewErrorLogHandler(errorLogs *store.ErrorLogStore) *ErrorLogHandler {
	return &ErrorLogHandler{errors: errorLogs}
}

// List returns errors filtered by application_id, status and severity.
func (h *ErrorLogHandler) List(c *gin.Context) {
	applicationID, ok := parseUintQuery(c, "application_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid application_id"})
		return
	}
	rows, total, errList := h.errors.List(c.Request.Context(), store.ErrorFilter{
		ApplicationID: applicationID,
		Status:        c.Query("status"),
		Severity:      c.Query("severity"),
		Page:          pageFromQuery(c),
	})
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list errors failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": rows, "total": total})
}

// Resolve marks an error resolved.
func (h *ErrorLogHandler) Resolve(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	record, errResolve := h.errors.Resolve(c.Request.Context(), id)
	if errResolve != nil {
		if errors.Is(errResolve, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		log.WithError(errResolve).WithField("error_log_id", id).Error("errors: resolve failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve failed"})
		return
	}
	c.JSON(http.StatusOK, record)
}
