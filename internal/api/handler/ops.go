package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker/v2"

	"github.com/trovehunt/pushgate/internal/api/models"
	"github.com/trovehunt/pushgate/internal/api/response"
	"github.com/trovehunt/pushgate/internal/delivery"
	"github.com/trovehunt/pushgate/internal/provider/resilience"
	"github.com/trovehunt/pushgate/internal/subscription"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string

	pool          *pgxpool.Pool
	registry      *resilience.Registry
	deliveries    *delivery.Service
	subscriptions *subscription.Service
}

// OpsConfig holds the dependencies of the operational endpoints. Pool may
// be nil when running against the in-memory store.
type OpsConfig struct {
	Version       string
	BuildTime     string
	Pool          *pgxpool.Pool
	Registry      *resilience.Registry
	Deliveries    *delivery.Service
	Subscriptions *subscription.Service
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:       cfg.Version,
		buildTime:     cfg.BuildTime,
		pool:          cfg.Pool,
		registry:      cfg.Registry,
		deliveries:    cfg.Deliveries,
		subscriptions: cfg.Subscriptions,
	}
}

// HealthCheck handles GET /ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /ops/ready - readiness check. Not ready until
// subscription storage answers.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.pool != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.pool.Ping(ctx); err != nil {
			health := models.Health{
				Status: models.HealthStatusFail,
				Time:   models.Timestamp(time.Now()),
				Details: map[string]interface{}{
					"database": err.Error(),
				},
			}
			response.JSON(w, r, http.StatusServiceUnavailable, health)
			return
		}
	}

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /ops/status - storage, push service origins, and
// cumulative delivery counters.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())
	overall := models.HealthStatusOK

	subsystems := []models.SubsystemStatus{h.storageStatus(r.Context())}
	for _, sub := range subsystems {
		if sub.Status == models.HealthStatusFail {
			overall = models.HealthStatusFail
		}
	}

	var pushServices []models.ProviderStatus
	if h.registry != nil {
		for _, ph := range h.registry.GetAllHealth() {
			status := models.HealthStatusOK
			switch {
			case ph.IsUnhealthy():
				status = models.HealthStatusFail
			case ph.IsDegraded():
				status = models.HealthStatusDegraded
			}
			if status != models.HealthStatusOK && overall == models.HealthStatusOK {
				overall = models.HealthStatusDegraded
			}

			provider := models.ProviderStatus{
				Provider:     ph.Name,
				Status:       status,
				CircuitState: circuitStateString(ph.CircuitState),
			}
			if ph.LastSuccessAt != nil {
				ts := models.Timestamp(*ph.LastSuccessAt)
				provider.LastSuccessAt = &ts
			}
			if ph.LastFailureAt != nil {
				ts := models.Timestamp(*ph.LastFailureAt)
				provider.LastFailureAt = &ts
			}
			if ph.LastError != "" {
				msg := ph.LastError
				provider.Message = &msg
			}
			pushServices = append(pushServices, provider)
		}
	}

	status := models.SystemStatus{
		Status:       overall,
		Time:         now,
		Subsystems:   subsystems,
		PushServices: pushServices,
	}
	if h.deliveries != nil {
		status.Delivery = h.deliveries.Metrics()
	}

	response.JSON(w, r, http.StatusOK, status)
}

// storageStatus probes subscription storage and reports the stored count.
func (h *OpsHandler) storageStatus(ctx context.Context) models.SubsystemStatus {
	status := models.SubsystemStatus{
		Name:   "subscription-store",
		Status: models.HealthStatusOK,
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	count, err := h.subscriptions.Count(probeCtx)
	if err != nil {
		detail := err.Error()
		status.Status = models.HealthStatusFail
		status.Detail = &detail
		return status
	}

	detail := "subscriptions: " + strconv.FormatInt(count, 10)
	status.Detail = &detail
	return status
}

func circuitStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
