package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/erp/stockengine/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping() error
}

// HealthHandler serves the liveness and readiness endpoint
type HealthHandler struct {
	BaseHandler
	db        Pinger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db Pinger, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		version:   version,
		startTime: time.Now(),
	}
}

// HealthResponse is the health check payload
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Version   string `json:"version,omitempty"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Time      string `json:"time"`
}

// Health answers 200 when the database responds and 503 otherwise
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Database:  "ok",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Time:      time.Now().Format(time.RFC3339),
	}

	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
			resp.Status = "unhealthy"
			resp.Database = "error"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}
