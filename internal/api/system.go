package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// healthCheckTimeout bounds each dependency check.
const healthCheckTimeout = 2 * time.Second

// handleHealth reports the server version and the state of every
// dependency. Any failing check turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{
		"status":          "ok",
		"version":         s.version,
		"checks":          checks,
		"active_sessions": s.discovery.ActiveCount(),
		"pucks":           s.pucks.Count(),
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if s.bridge != nil {
		body["bridge"] = s.bridge.Status()
	}
	writeJSON(w, status, body)
}

// handleListActuators returns the actuator catalogue.
func (s *Server) handleListActuators(w http.ResponseWriter, _ *http.Request) {
	list := s.actuators.List()
	writeJSON(w, http.StatusOK, map[string]any{"actuators": list, "count": len(list)})
}

// handleListSessions returns the discovery sessions currently in flight.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.discovery.Sessions()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

// handleRefresh requests discovery for every puck now, outside the schedule.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "capability refresh is not configured")
		return
	}
	report, err := s.refresher.RefreshNow(r.Context())
	if err != nil {
		s.domainError(w, err, "failed to refresh capabilities")
		return
	}
	writeJSON(w, http.StatusAccepted, report)
}
