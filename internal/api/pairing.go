package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/puck-central/internal/pairing"
	"github.com/nerrad567/puck-central/internal/puck"
)

// handleListCandidates returns beacons waiting to be accepted.
func (s *Server) handleListCandidates(w http.ResponseWriter, _ *http.Request) {
	candidates := s.pairing.Candidates()
	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates, "count": len(candidates)})
}

// AcceptRequest is the optional body of POST /candidates/{address}/accept.
type AcceptRequest struct {
	Name string `json:"name"`
}

// handleAcceptCandidate pairs a candidate and starts service discovery.
func (s *Server) handleAcceptCandidate(w http.ResponseWriter, r *http.Request) {
	var req AcceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	p, err := s.pairing.Accept(r.Context(), chi.URLParam(r, "address"), req.Name)
	if err != nil {
		s.domainError(w, err, "failed to accept candidate")
		return
	}
	writeJSON(w, http.StatusCreated, s.puckView(p))
}

// handleDismissCandidate forgets a candidate.
func (s *Server) handleDismissCandidate(w http.ResponseWriter, r *http.Request) {
	if err := s.pairing.Dismiss(chi.URLParam(r, "address")); err != nil {
		s.domainError(w, err, "failed to dismiss candidate")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SightingRequest reports a beacon transition over HTTP, for scanners that
// cannot reach the MQTT broker.
type SightingRequest struct {
	Transition    pairing.Transition `json:"transition"`
	ProximityUUID string             `json:"proximity_uuid"`
	Major         uint16             `json:"major"`
	Minor         uint16             `json:"minor"`
	Address       string             `json:"address"`
	RSSI          int                `json:"rssi"`
}

// SightingResponse carries the typed outcome and its user-facing message.
type SightingResponse struct {
	Outcome string `json:"outcome"`
	Message string `json:"message"`
}

// handleSighting handles one beacon transition.
func (s *Server) handleSighting(w http.ResponseWriter, r *http.Request) {
	var req SightingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	outcome, err := s.pairing.HandleSighting(r.Context(), pairing.Sighting{
		Transition: req.Transition,
		Beacon: puck.BeaconIdentity{
			ProximityUUID: req.ProximityUUID,
			Major:         req.Major,
			Minor:         req.Minor,
		},
		Address: req.Address,
		RSSI:    req.RSSI,
	})
	if err != nil {
		s.domainError(w, err, "failed to handle sighting")
		return
	}
	writeJSON(w, http.StatusOK, SightingResponse{Outcome: outcome.String(), Message: outcome.Message()})
}
