package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alimgiray/personhub/internal/services"
	"github.com/alimgiray/personhub/pkg/logger"
)

const healthTimeout = 2 * time.Second

// Check reports whether one dependency is reachable
type Check func(ctx context.Context) error

type HealthHandler struct {
	personService *services.PersonService
	checks        map[string]Check
}

func NewHealthHandler(personService *services.PersonService, checks map[string]Check) *HealthHandler {
	return &HealthHandler{
		personService: personService,
		checks:        checks,
	}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			logger.WithComponent("health").WithError(err).Warnf("%s check failed", name)
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "unavailable"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}

// Status handles GET /status
func (h *HealthHandler) Status(c *gin.Context) {
	status, err := h.personService.Status(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get status"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// Reset handles POST /reset
func (h *HealthHandler) Reset(c *gin.Context) {
	if err := h.personService.Reset(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Metrics returns the Prometheus exposition handler
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
