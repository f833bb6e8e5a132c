package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/store"
	log "github.com/sirupsen/logrus"
)

// ApplicationHandler manages monitored applications.
type ApplicationHandler struct {
	apps *store.ApplicationStore
}

// NewApplicationHandler constructs an ApplicationHandler.
func NewApplicationHandler(apps *store.ApplicationStore) *ApplicationHandler {
	return &ApplicationHandler{apps: apps}
}

// createApplicationRequest defines the request body for application creation.
type createApplicationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Technology  string `json:"technology"`
	Version     string `json:"version"`
	BaseURL     string `json:"base_url"`
}

// Create registers an application and returns its ingestion key once.
func (h *ApplicationHandler) Create(c *gin.Context) {
	var body createApplicationRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	input := store.CreateApplicationInput{
		Name:        body.Name,
		Description: body.Description,
		Technology:  body.Technology,
		Version:     body.Version,
		BaseURL:     body.BaseURL,
	}
	if identity, ok := CurrentIdentity(c); ok {
		input.CreatedBy = identity.UserID
	}
	if strings.TrimSpace(input.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}

	app, key, errCreate := h.apps.Create(c.Request.Context(), input)
	if errCreate != nil {
		if errors.Is(errCreate, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "application already exists"})
			return
		}
		log.WithError(errCreate).Error("applications: create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create application failed"})
		return
	}
	out := formatApplication(app)
	out["api_key"] = key
	c.JSON(http.StatusCreated, out)
}

// List returns applications filtered by search.
func (h *ApplicationHandler) List(c *gin.Context) {
	rows, errList := h.apps.List(c.Request.Context(), c.Query("search"))
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list applications failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatApplication(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"applications": out})
}

// Pause stops ingestion for an application without rejecting clients.
func (h *ApplicationHandler) Pause(c *gin.Context) {
	h.setPaused(c, true)
}

// Resume restarts ingestion for an application.
func (h *ApplicationHandler) Resume(c *gin.Context) {
	h.setPaused(c, false)
}

func (h *ApplicationHandler) setPaused(c *gin.Context, paused bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if errUpdate := h.apps.SetPaused(c.Request.Context(), id, paused); errUpdate != nil {
		writeUpdateError(c, errUpdate, "update application failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "paused": paused})
}

// formatApplication formats an application without its key hash.
func formatApplication(app *models.Application) gin.H {
	return gin.H{
		"id":             app.ID,
		"name":           app.Name,
		"description":    app.Description,
		"technology":     app.Technology,
		"version":        app.Version,
		"base_url":       app.BaseURL,
		"api_key_prefix": app.APIKeyPrefix,
		"active":         app.Active,
		"paused":         app.Paused,
		"created_by":     app.CreatedBy,
		"created_at":     app.CreatedAt,
		"updated_at":     app.UpdatedAt,
	}
}
