package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/puck-central/internal/capability"
	"github.com/nerrad567/puck-central/internal/puck"
)

// TriggerInfo describes one trigger a puck supports.
type TriggerInfo struct {
	Trigger     capability.Trigger `json:"trigger"`
	Description string             `json:"description"`
}

// PuckView is a puck plus its resolved triggers and live session state.
type PuckView struct {
	*puck.Puck
	Services    []ServiceInfo `json:"services"`
	Triggers    []TriggerInfo `json:"triggers"`
	Discovering bool          `json:"discovering"`
}

// ServiceInfo labels a GATT service.
type ServiceInfo struct {
	ID    puck.ServiceID `json:"id"`
	Name  string         `json:"name,omitempty"`
	Known bool           `json:"known"`
}

func (s *Server) puckView(p *puck.Puck) PuckView {
	services := make([]ServiceInfo, 0, len(p.ServiceCapabilities))
	for _, id := range p.ServiceCapabilities {
		name, known := capability.ServiceName(id)
		services = append(services, ServiceInfo{ID: id, Name: name, Known: known})
	}
	return PuckView{
		Puck:        p,
		Services:    services,
		Triggers:    triggerInfos(p.ServiceCapabilities),
		Discovering: s.discovery.Active(p.Address),
	}
}

func triggerInfos(services []puck.ServiceID) []TriggerInfo {
	triggers := capability.ResolveTriggers(services)
	out := make([]TriggerInfo, 0, len(triggers))
	for _, t := range triggers {
		out = append(out, TriggerInfo{Trigger: t, Description: capability.Describe(t)})
	}
	return out
}

// handleListPucks returns every paired puck.
func (s *Server) handleListPucks(w http.ResponseWriter, r *http.Request) {
	pucks, err := s.pucks.List(r.Context())
	if err != nil {
		s.logger.Error("listing pucks", "error", err)
		writeInternalError(w, "failed to list pucks")
		return
	}

	views := make([]PuckView, 0, len(pucks))
	for i := range pucks {
		views = append(views, s.puckView(&pucks[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"pucks": views, "count": len(views)})
}

// handleGetPuck returns a single puck by ID.
func (s *Server) handleGetPuck(w http.ResponseWriter, r *http.Request) {
	p, err := s.pucks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.domainError(w, err, "failed to get puck")
		return
	}
	writeJSON(w, http.StatusOK, s.puckView(p))
}

// RenameRequest is the body of PATCH /pucks/{id}.
type RenameRequest struct {
	Name string `json:"name"`
}

// handleRenamePuck changes a puck's display name.
func (s *Server) handleRenamePuck(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	p, err := s.pucks.Rename(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		s.domainError(w, err, "failed to rename puck")
		return
	}
	writeJSON(w, http.StatusOK, s.puckView(p))
}

// handleDeletePuck unpairs a puck. Its rules are removed with it.
func (s *Server) handleDeletePuck(w http.ResponseWriter, r *http.Request) {
	if err := s.pucks.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.domainError(w, err, "failed to delete puck")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListTriggers returns the triggers the puck's services offer.
func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	p, err := s.pucks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.domainError(w, err, "failed to get puck")
		return
	}
	triggers := triggerInfos(p.ServiceCapabilities)
	writeJSON(w, http.StatusOK, map[string]any{"triggers": triggers, "count": len(triggers)})
}

// handleDiscoverPuck requests a GATT service discovery session. A session
// already in flight for the puck is reported, not treated as an error.
func (s *Server) handleDiscoverPuck(w http.ResponseWriter, r *http.Request) {
	p, err := s.pucks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.domainError(w, err, "failed to get puck")
		return
	}

	admission, err := s.discovery.RequestDiscovery(p.Address)
	if err != nil {
		s.domainError(w, err, "failed to request discovery")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"address":   p.Address,
		"admission": admission.String(),
	})
}

// handleFireTrigger runs the rules bound to a trigger, as if the puck had
// raised it.
func (s *Server) handleFireTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.pucks.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.domainError(w, err, "failed to get puck")
		return
	}

	trigger := capability.Trigger(chi.URLParam(r, "trigger"))
	if !capability.Known(trigger) {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "unknown trigger "+string(trigger))
		return
	}

	result, err := s.rules.Signal(ctx, p.ID, trigger)
	if err != nil {
		s.domainError(w, err, "failed to fire trigger")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// domainError writes err and logs it when it is not a known domain error.
func (s *Server) domainError(w http.ResponseWriter, err error, fallback string) {
	if !writeDomainError(w, err, fallback) {
		s.logger.Error(fallback, "error", err)
	}
}
