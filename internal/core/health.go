package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pathsynch/internal/types"
)

// healthCheckTimeout bounds the whole probe pass. Anything slower than this
// is reported unhealthy rather than holding up the load balancer.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is one subsystem health check. Each probe represents a
// critical dependency (database, queue) that must be operational.
type HealthProbe interface {
	// Name returns a stable identifier for the probe (e.g., "database").
	Name() string

	// Check performs the health check, respecting the context deadline.
	Check(ctx context.Context) error
}

// componentStatus is the health state of a single subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthReport is the data payload of the health endpoint.
type healthReport struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth is the liveness endpoint: it reports whether the process is
// up and serving, without touching any dependency. Load balancers use it to
// decide whether to restart the instance.
//
// Mounted at GET /health, no authentication.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	OK(w, r, healthReport{Status: "healthy"})
}

// HandleReady is the readiness endpoint: it runs all registered probes
// concurrently under a 2-second deadline. 200 when everything reports
// healthy, 503 otherwise. Probes that panic or fail to finish in time count
// as unhealthy.
//
// Mounted at GET /health/ready, no authentication.
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	probes := s.HealthProbes
	if len(probes) == 0 {
		OK(w, r, healthReport{Status: "healthy"})
		return
	}

	type probeResult struct {
		name string
		err  error
	}

	var (
		mu      sync.Mutex
		results = make([]probeResult, 0, len(probes))
		wg      sync.WaitGroup
	)

	for _, probe := range probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()

			var err error
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						err = fmt.Errorf("probe panicked: %v", rec)
					}
				}()
				err = p.Check(ctx)
			}()

			mu.Lock()
			results = append(results, probeResult{name: p.Name(), err: err})
			mu.Unlock()
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Build a partial report; probes still running are marked timed out.
	}

	mu.Lock()
	completed := make(map[string]probeResult, len(results))
	for _, res := range results {
		completed[res.name] = res
	}
	mu.Unlock()

	components := make(map[string]componentStatus, len(probes))
	allHealthy := true

	for _, probe := range probes {
		name := probe.Name()
		if res, ok := completed[name]; ok {
			if res.err != nil {
				allHealthy = false
				components[name] = componentStatus{Status: "unhealthy", Message: res.err.Error()}
			} else {
				components[name] = componentStatus{Status: "healthy"}
			}
		} else {
			allHealthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		}
	}

	if allHealthy {
		OK(w, r, healthReport{Status: "healthy", Components: components})
		return
	}

	JSON(w, r, http.StatusServiceUnavailable, APIResponse{
		Success:   false,
		Error:     string(types.ErrCodeUpstreamUnavailable),
		Message:   "one or more subsystems are unhealthy",
		Details:   map[string]any{"components": components},
		RequestID: types.GetRequestID(r.Context()),
	})
}
