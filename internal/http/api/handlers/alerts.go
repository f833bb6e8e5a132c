package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/store"
	log "github.com/sirupsen/logrus"
)

// AlertHandler manages alerts.
type AlertHandler struct {
	alerts *store.AlertStore
}

// NewAlertHandler constructs an AlertHandler.
func NewAlertHandler(alerts *store.AlertStore) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// createAlertRequest defines the request body for a manual alert.
type createAlertRequest struct {
	ApplicationID flexibleID `json:"application_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Condition     string     `json:"condition"`
	Recipients    string     `json:"recipients"`
	AlertLevel    string     `json:"alert_level"`
	Message       string     `json:"message"`
}

// Create stores a manual alert and pushes it to subscribers.
func (h *AlertHandler) Create(c *gin.Context) {
	var body createAlertRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	input := store.AlertInput{
		ApplicationID: uint64(body.ApplicationID),
		Name:          body.Name,
		Description:   body.Description,
		Condition:     body.Condition,
		Recipients:    body.Recipients,
		AlertLevel:    body.AlertLevel,
		Message:       body.Message,
	}
	if identity, ok := CurrentIdentity(c); ok {
		input.CreatedBy = identity.UserID
	}

	alert, errCreate := h.alerts.Create(c.Request.Context(), input)
	if errCreate != nil {
		switch {
		case errors.Is(errCreate, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
		case errors.Is(errCreate, store.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert"})
		default:
			log.WithError(errCreate).Error("alerts: create failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create alert failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, alert)
}

// List returns alerts filtered by application_id and resolved.
func (h *AlertHandler) List(c *gin.Context) {
	applicationID, ok := parseUintQuery(c, "application_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid application_id"})
		return
	}
	filter := store.AlertFilter{ApplicationID: applicationID, Page: pageFromQuery(c)}
	if raw := strings.TrimSpace(c.Query("resolved")); raw != "" {
		resolved, errParse := strconv.ParseBool(raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resolved"})
			return
		}
		filter.Resolved = &resolved
	}
	rows, total, errList := h.alerts.List(c.Request.Context(), filter)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list alerts failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": rows, "total": total})
}

// Resolve marks an alert resolved.
func (h *AlertHandler) Resolve(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	alert, errResolve := h.alerts.Resolve(c.Request.Context(), id)
	if errResolve != nil {
		if errors.Is(errResolve, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		log.WithError(errResolve).WithField("alert_id", id).Error("alerts: resolve failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve failed"})
		return
	}
	c.JSON(http.StatusOK, alert)
}
