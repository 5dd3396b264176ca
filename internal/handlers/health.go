package handlers

import (
	"net/http"
	"time"

	"github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

// BuildInfo identifies the running binary in health responses.
type BuildInfo struct {
	Version     string
	Environment string
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	repo      repositories.HealthRepository
	build     BuildInfo
	now       func() time.Time
	startedAt time.Time
}

// HealthOption customises health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthRepository attaches dependency probes (database ping, redis ping).
func WithHealthRepository(repo repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.repo = repo
	}
}

func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock injects a clock; the start time is taken from the first reading.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
			h.startedAt = clock()
		}
	}
}

func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now, startedAt: time.Now()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

type healthCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type healthPayload struct {
	Status      string                        `json:"status"`
	Version     string                        `json:"version,omitempty"`
	Environment string                        `json:"environment,omitempty"`
	Uptime      string                        `json:"uptime"`
	Timestamp   string                        `json:"timestamp"`
	Checks      map[string]healthCheckPayload `json:"checks,omitempty"`
}

// Healthz reports liveness plus dependency probes. Only a hard dependency failure returns 503.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	payload := h.collect(r)
	status := http.StatusOK
	if payload.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}

// Readyz returns 503 unless every dependency is healthy.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	payload := h.collect(r)
	status := http.StatusOK
	if payload.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}

func (h *HealthHandlers) collect(r *http.Request) healthPayload {
	now := h.now()
	payload := healthPayload{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.startedAt).Truncate(time.Second).String(),
		Timestamp:   formatTime(now),
	}
	if h.repo == nil {
		return payload
	}

	report, err := h.repo.Collect(r.Context())
	if err != nil {
		payload.Status = domain.HealthStatusError
		return payload
	}
	payload.Status = report.Status
	payload.Checks = make(map[string]healthCheckPayload, len(report.Checks))
	for name, check := range report.Checks {
		payload.Checks[name] = healthCheckPayload{
			Status:    check.Status,
			Detail:    check.Detail,
			LatencyMS: check.Latency.Milliseconds(),
		}
	}
	return payload
}
