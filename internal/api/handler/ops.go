package handler

import (
	"net/http"
	"time"

	"github.com/airsentry/airsentry/internal/api/models"
	"github.com/airsentry/airsentry/internal/api/response"
	"github.com/airsentry/airsentry/internal/provider/resilience"
	"github.com/airsentry/airsentry/internal/scheduler"
	"github.com/airsentry/airsentry/internal/subscription"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	health    *resilience.Registry
	scheduler *scheduler.Scheduler
	registry  *subscription.Registry
}

// OpsHandlerConfig holds the handler's dependencies. Health, Scheduler, and
// Registry are optional; absent ones are omitted from the status report.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string
	Health    *resilience.Registry
	Scheduler *scheduler.Scheduler
	Registry  *subscription.Registry
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		health:    cfg.Health,
		scheduler: cfg.Scheduler,
		registry:  cfg.Registry,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	})
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	if h.scheduler != nil {
		m := h.scheduler.Metrics()
		status.Subsystems = append(status.Subsystems, models.SubsystemStatus{
			Name:   "scheduler",
			Status: models.HealthStatusOK,
			Detail: map[string]any{
				"totalTicks":         m.TotalTicks,
				"locationsRefreshed": m.LocationsRefreshed,
				"failures":           m.Failures,
				"lastTickAt":         m.LastTickAt,
			},
		})
	}
	if h.registry != nil {
		status.Subsystems = append(status.Subsystems, models.SubsystemStatus{
			Name:   "subscriptions",
			Status: models.HealthStatusOK,
			Detail: map[string]any{"count": h.registry.Count()},
		})
	}

	if h.health != nil {
		for _, p := range h.health.AllHealth() {
			ps := models.ProviderStatus{
				Provider:     p.Name,
				Status:       models.HealthStatusOK,
				CircuitState: p.CircuitState.String(),
				LastError:    p.LastError,
			}
			if !p.Healthy() {
				ps.Status = models.HealthStatusDegraded
				status.Status = models.HealthStatusDegraded
			}
			if p.LastSuccessAt != nil {
				ts := models.Timestamp(*p.LastSuccessAt)
				ps.LastSuccessAt = &ts
			}
			if p.LastFailureAt != nil {
				ts := models.Timestamp(*p.LastFailureAt)
				ps.LastFailureAt = &ts
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}
