package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	ferrors "github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/contextlens/contextlens/internal/errors"
)

// Check results reported per registered checker.
const (
	checkHealthy   = "healthy"
	checkDegraded  = "degraded"
	checkUnhealthy = "unhealthy"
	checkTimeout   = "timeout"
)

// ErrDegraded marks a checker failure that should not fail the probe.
// Wrap it when a component still serves requests in a reduced mode.
var ErrDegraded = errors.New("degraded")

// probe names an endpoint and its check budget.
type probe struct {
	name    string
	timeout time.Duration
}

var (
	probeAggregate = probe{name: "aggregate", timeout: 5 * time.Second}
	probeLive      = probe{name: "live", timeout: 2 * time.Second}
	probeReady     = probe{name: "ready", timeout: 5 * time.Second}
	probeStartup   = probe{name: "startup", timeout: 3 * time.Second}
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse is returned by the live, ready and startup probes.
type ProbeResponse struct {
	Status    string    `json:"status"`
	Probe     string    `json:"probe"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

// CheckHealth calls f.
func (f CheckFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthManager runs registered checkers for the health endpoints.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	version  string
	now      func() time.Time
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		version:  version,
		now:      time.Now,
	}
}

// RegisterChecker registers a health checker, replacing any with the same name.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// runHealthChecks runs every checker concurrently. A checker still running
// when ctx expires is reported as timeout.
func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]string {
	hm.mu.RLock()
	checkers := make(map[string]HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	type result struct {
		name   string
		status string
	}
	results := make(chan result, len(checkers))
	for name, checker := range checkers {
		go func(name string, checker HealthChecker) {
			results <- result{name: name, status: classifyCheck(checker.CheckHealth(ctx))}
		}(name, checker)
	}

	checks := make(map[string]string, len(checkers))
	for range checkers {
		select {
		case res := <-results:
			checks[res.name] = res.status
		case <-ctx.Done():
			for name := range checkers {
				if _, done := checks[name]; !done {
					checks[name] = checkTimeout
				}
			}
			return checks
		}
	}
	return checks
}

func classifyCheck(err error) string {
	switch {
	case err == nil:
		return checkHealthy
	case errors.Is(err, ErrDegraded):
		return checkDegraded
	case errors.Is(err, context.DeadlineExceeded):
		return checkTimeout
	default:
		return checkUnhealthy
	}
}

// determineOverallStatus folds check results: any unhealthy check fails the
// probe, degraded or timed out checks degrade it.
func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	overall := checkHealthy
	for _, status := range checks {
		switch status {
		case checkUnhealthy:
			return checkUnhealthy
		case checkDegraded, checkTimeout:
			overall = checkDegraded
		}
	}
	return overall
}

// evaluate runs the checks under the probe budget and writes the failure
// envelope when the result is unhealthy. ok is false when a response was written.
func (hm *HealthManager) evaluate(w http.ResponseWriter, r *http.Request, p probe) (string, map[string]string, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	checks := hm.runHealthChecks(ctx)
	status := hm.determineOverallStatus(checks)
	if status == checkUnhealthy {
		envelope := apperrors.NewServiceUnavailableError(p.name + " health check failed")
		respondWithError(w, r, enrichHealthEnvelope(envelope, p.name, status, checks))
		return status, checks, false
	}
	return status, checks, true
}

// HealthHandler reports every check result along with the build version.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status, checks, ok := hm.evaluate(w, r, probeAggregate)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: hm.now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// LivenessHandler reports whether the process is running.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, probeLive)
}

// ReadinessHandler reports whether the server should receive traffic.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, probeReady)
}

// StartupHandler reports whether initialization has finished.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, probeStartup)
}

func (hm *HealthManager) serveProbe(w http.ResponseWriter, r *http.Request, p probe) {
	status, _, ok := hm.evaluate(w, r, p)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ProbeResponse{
		Status:    status,
		Probe:     p.name,
		Timestamp: hm.now().UTC(),
	})
}

func enrichHealthEnvelope(envelope *ferrors.ErrorEnvelope, probeName, status string, checks map[string]string) *ferrors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	details := map[string]interface{}{
		"status": status,
		"probe":  probeName,
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	envelope = envelope.WithDetails(details)

	var failing []string
	for name, result := range checks {
		if result != checkHealthy {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	contextData := map[string]interface{}{
		"status": status,
		"probe":  probeName,
	}
	if len(failing) > 0 {
		contextData["unhealthy_checks"] = failing
	}
	if withCtx, err := envelope.WithContext(contextData); err == nil {
		envelope = withCtx
	}
	return envelope
}

var globalHealthManager *HealthManager

// InitHealthManager initializes the global health manager
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the global health manager
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func withGlobalManager(p probe, serve func(*HealthManager, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if globalHealthManager == nil {
			envelope := apperrors.NewServiceUnavailableError("health manager not initialized")
			respondWithError(w, r, enrichHealthEnvelope(envelope, p.name, "unknown", nil))
			return
		}
		serve(globalHealthManager, w, r)
	}
}

// Handlers bound to the global manager, mounted by the router.
var (
	HealthHandler    = withGlobalManager(probeAggregate, (*HealthManager).HealthHandler)
	LivenessHandler  = withGlobalManager(probeLive, (*HealthManager).LivenessHandler)
	ReadinessHandler = withGlobalManager(probeReady, (*HealthManager).ReadinessHandler)
	StartupHandler   = withGlobalManager(probeStartup, (*HealthManager).StartupHandler)
)
