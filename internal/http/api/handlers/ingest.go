package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/store"
	log "github.com/sirupsen/logrus"
)

// APIKeyHeader carries the application ingestion key.
const APIKeyHeader = "X-API-Key"

const maxBulkErrors = 100

// IngestHandler accepts errors reported by monitored applications.
type IngestHandler struct {
	errors *store.ErrorLogStore
}

// NewIngestHandler constructs an IngestHandler.
func NewIngestHandler(errorLogs *store.ErrorLogStore) *IngestHandler {
	return &IngestHandler{errors: errorLogs}
}

// ingestErrorRequest is one reported error.
type ingestErrorRequest struct {
	Message     string          `json:"message"`
	StackTrace  string          `json:"stack_trace"`
	Source      string          `json:"source"`
	ErrorType   string          `json:"error_type"`
	Severity    string          `json:"severity"`
	Environment string          `json:"environment"`
	UserAgent   string          `json:"user_agent"`
	IPAddress   string          `json:"ip_address"`
	HTTPMethod  string          `json:"http_method"`
	APIEndpoint string          `json:"api_endpoint"`
	Metadata    json.RawMessage `json:"metadata"`
}

func (r ingestErrorRequest) input() store.ErrorInput {
	return store.ErrorInput{
		Message:     r.Message,
		StackTrace:  r.StackTrace,
		Source:      r.Source,
		ErrorType:   r.ErrorType,
		Severity:    r.Severity,
		Environment: r.Environment,
		UserAgent:   r.UserAgent,
		IPAddress:   r.IPAddress,
		HTTPMethod:  r.HTTPMethod,
		APIEndpoint: r.APIEndpoint,
		Metadata:    r.Metadata,
	}
}

// bulkIngestRequest wraps several reported errors.
type bulkIngestRequest struct {
	Errors []ingestErrorRequest `json:"errors"`
}

// Ingest stores one error for the application owning the API key.
func (h *IngestHandler) Ingest(c *gin.Context) {
	apiKey := strings.TrimSpace(c.GetHeader(APIKeyHeader))
	if apiKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
		return
	}
	var body ingestErrorRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	status, payload := h.ingestOne(c.Request.Context(), apiKey, body)
	c.JSON(status, payload)
}

// IngestBulk stores up to maxBulkErrors errors and reports each result.
func (h *IngestHandler) IngestBulk(c *gin.Context) {
	apiKey := strings.TrimSpace(c.GetHeader(APIKeyHeader))
	if apiKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
		return
	}
	var body bulkIngestRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.Errors) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no errors"})
		return
	}
	if len(body.Errors) > maxBulkErrors {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many errors"})
		return
	}

	results := make([]gin.H, 0, len(body.Errors))
	for _, item := range body.Errors {
		status, payload := h.ingestOne(c.Request.Context(), apiKey, item)
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError:
			// Key and store failures abort the batch.
			c.JSON(status, payload)
			return
		}
		payload["status"] = status
		results = append(results, payload)
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *IngestHandler) ingestOne(ctx context.Context, apiKey string, body ingestErrorRequest) (int, gin.H) {
	result, errIngest := h.errors.Ingest(ctx, apiKey, body.input())
	if errIngest != nil {
		switch {
		case errors.Is(errIngest, store.ErrNotFound):
			return http.StatusUnauthorized, gin.H{"error": "invalid api key"}
		case errors.Is(errIngest, store.ErrApplicationInactive):
			return http.StatusForbidden, gin.H{"error": "application inactive"}
		case errors.Is(errIngest, store.ErrInvalidInput):
			return http.StatusBadRequest, gin.H{"error": strings.TrimPrefix(errIngest.Error(), store.ErrInvalidInput.Error()+": ")}
		default:
			log.WithError(errIngest).Error("ingest: store error failed")
			return http.StatusInternalServerError, gin.H{"error": "ingest failed"}
		}
	}
	if result.Ignored {
		return http.StatusAccepted, gin.H{"ignored": "paused"}
	}
	out := gin.H{
		"id":             result.ErrorLog.ID,
		"application_id": result.ErrorLog.ApplicationID,
		"severity":       result.ErrorLog.Severity,
		"created_at":     result.ErrorLog.CreatedAt,
	}
	if result.Alert != nil {
		out["alert_id"] = result.Alert.ID
	}
	return http.StatusCreated, out
}
