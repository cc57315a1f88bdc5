package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus is the body of /health and /ready
type HealthStatus struct {
	Status     string            `json:"status"` // healthy|unhealthy or ready|not_ready
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	StartTime  time.Time         `json:"-"`
}

// ComponentHealth is the last reported state of one component
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// HealthChecker holds the state reported by the daemon's components
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	critical   []string
	startTime  time.Time
	version    string
}

// DefaultCriticalComponents must be registered and healthy for readiness
var DefaultCriticalComponents = []string{"store", "scheduler"}

var healthChecker = &HealthChecker{
	components: make(map[string]ComponentHealth),
	critical:   DefaultCriticalComponents,
	startTime:  time.Now(),
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// SetCriticalComponents replaces the components checked by readiness.
// A daemon running without the reboot scheduler only waits for "store".
func SetCriticalComponents(names ...string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.critical = append([]string(nil), names...)
}

// RegisterComponent records the state of a component, replacing any
// earlier report
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent is RegisterComponent for components already known
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// status fills the fields shared by health and readiness. Callers hold the
// read lock.
func (h *HealthChecker) status(state string) HealthStatus {
	return HealthStatus{
		Status:     state,
		Timestamp:  time.Now(),
		Components: make(map[string]string),
		Version:    h.version,
		Uptime:     time.Since(h.startTime).String(),
		StartTime:  h.startTime,
	}
}

// GetHealth is unhealthy as soon as any registered component is
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	health := healthChecker.status("healthy")
	for name, comp := range healthChecker.components {
		if comp.Healthy {
			health.Components[name] = "healthy"
			continue
		}
		health.Status = "unhealthy"
		health.Components[name] = "unhealthy: " + comp.Message
	}
	return health
}

// GetReadiness only looks at critical components, which must be registered
// and healthy
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	readiness := healthChecker.status("ready")
	for _, name := range healthChecker.critical {
		comp, ok := healthChecker.components[name]
		switch {
		case !ok:
			readiness.Status = "not_ready"
			readiness.Message = "waiting for " + name + " initialization"
			readiness.Components[name] = "not registered"
		case !comp.Healthy:
			readiness.Status = "not_ready"
			readiness.Message = "waiting for " + name
			readiness.Components[name] = "not ready: " + comp.Message
		default:
			readiness.Components[name] = "ready"
		}
	}
	return readiness
}

func writeJSON(w http.ResponseWriter, ok bool, body any) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler serves /health: 503 while any component is unhealthy
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()
		writeJSON(w, health.Status != "unhealthy", health)
	}
}

// ReadyHandler serves /ready: 503 until every critical component is ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()
		writeJSON(w, readiness.Status == "ready", readiness)
	}
}

// LivenessHandler serves /live, which answers 200 while the process runs
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, true, map[string]string{
			"status": "alive",
			"uptime": time.Since(healthChecker.startTime).String(),
		})
	}
}
