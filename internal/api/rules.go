package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/puck-central/internal/automation"
	"github.com/nerrad567/puck-central/internal/capability"
)

// handleListRules returns a puck's rules with their actions.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.pucks.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.domainError(w, err, "failed to get puck")
		return
	}

	rules, err := s.rules.Rules(ctx, p.ID)
	if err != nil {
		s.domainError(w, err, "failed to list rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

// ConfigureRequest is the body of POST /pucks/{id}/rules.
//
// Without RuleID the action joins the puck's existing rule for Trigger, or
// starts a new one. With RuleID it extends that rule, which must belong to
// the same puck and trigger.
type ConfigureRequest struct {
	Trigger  capability.Trigger      `json:"trigger"`
	Actuator automation.ActuatorKind `json:"actuator"`
	Params   map[string]any          `json:"params"`
	RuleID   string                  `json:"rule_id,omitempty"`
}

// handleConfigureRule configures one action and binds it to a rule.
func (s *Server) handleConfigureRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ConfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	p, err := s.pucks.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.domainError(w, err, "failed to get puck")
		return
	}

	if !capability.Offers(p.ServiceCapabilities, req.Trigger) {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation,
			"puck does not offer trigger "+string(req.Trigger))
		return
	}

	rule := automation.NewRule(p.ID, req.Trigger)
	if req.RuleID != "" {
		existing, err := s.rules.Rule(ctx, req.RuleID)
		if err != nil {
			s.domainError(w, err, "failed to get rule")
			return
		}
		if existing.PuckID != p.ID || existing.Trigger != req.Trigger {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation,
				"rule "+existing.ID+" is not bound to this puck and trigger")
			return
		}
		rule = existing
	}

	stored, err := s.rules.Configure(ctx, rule, req.Actuator, req.Params)
	if err != nil {
		s.domainError(w, err, "failed to configure rule")
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// handleGetRule returns one rule.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.Rule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.domainError(w, err, "failed to get rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleDeleteRule removes a rule and its actions.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.RemoveRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.domainError(w, err, "failed to delete rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
