package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ayusman/abhinaya/internal/app"
	"github.com/ayusman/abhinaya/internal/config"
	"github.com/ayusman/abhinaya/internal/detector"
	"github.com/ayusman/abhinaya/internal/layout"
	"github.com/ayusman/abhinaya/internal/log"
	"github.com/ayusman/abhinaya/internal/store"
)

const defaultSessionLimit = 50

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Enabled  bool         `json:"enabled"`
	Running  bool         `json:"running"`
	Snapshot app.Snapshot `json:"snapshot"`
}

type sessionResponse struct {
	Running bool           `json:"running"`
	Session *store.Session `json:"session,omitempty"`
}

type enableRequest struct {
	Enabled *bool `json:"enabled"`
}

type listSessionsResponse struct {
	Sessions []*store.Session `json:"sessions"`
}

type listActivationsResponse struct {
	Activations []*store.Activation `json:"activations"`
}

type layoutBody struct {
	Elements []layout.Element `json:"elements"`
}

type settingsBody struct {
	Settings map[string]string `json:"settings"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// handleStatus serves GET /api/status (latest snapshot) and PUT
// /api/status ({"enabled": bool}) to pause or resume fusion.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	a := s.config.App

	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req enableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "Body must be {\"enabled\": bool}")
			return
		}
		a.SetEnabled(*req.Enabled)
		log.Info("fusion toggled", "enabled", *req.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Enabled:  a.IsEnabled(),
		Running:  a.Running(),
		Snapshot: a.Latest(),
	})
}

// handleSession serves /api/session: GET reports, POST starts and DELETE
// stops the camera session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	a := s.config.App

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		if err := a.Start(); err != nil {
			log.Error("starting session", "error", err)
			code := http.StatusInternalServerError
			if errors.Is(err, detector.ErrUnavailable) {
				code = http.StatusServiceUnavailable
			}
			writeError(w, code, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, sessionResponse{Running: a.Running(), Session: a.Session()})
		return
	case http.MethodDelete:
		a.Stop()
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Running: a.Running(), Session: a.Session()})
}

// handleSessions serves GET /api/sessions?limit=N, newest first.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultSessionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessions, err := s.config.Store.Sessions().List(limit)
	if err != nil {
		log.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

// handleActivations serves GET /api/sessions/{id}/activations.
func (s *Server) handleActivations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.PathValue("id")
	if _, err := s.config.Store.Sessions().Get(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	activations, err := s.config.Store.Activations().ListBySession(id)
	if err != nil {
		log.Error("listing activations", "session", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list activations")
		return
	}
	if activations == nil {
		activations = []*store.Activation{}
	}
	writeJSON(w, http.StatusOK, listActivationsResponse{Activations: activations})
}

// handleLayout serves /api/layout: GET lists the registered elements, PUT
// replaces them.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	tree := s.config.Layout

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, layoutBody{Elements: tree.Elements()})
	case http.MethodPut:
		var body layoutBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if err := tree.Replace(body.Elements); err != nil {
			if errors.Is(err, layout.ErrInvalidLayout) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to replace layout")
			return
		}
		log.Debug("layout replaced", "elements", len(body.Elements))
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSettings serves /api/settings. PUT stores the given keys; they
// take effect on the next start. An empty value deletes the key.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	settings := s.config.Store.Settings()

	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var body settingsBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		for k := range body.Settings {
			if !config.IsSettingKey(k) {
				writeError(w, http.StatusBadRequest, "Unknown setting "+k)
				return
			}
		}
		if err := settings.Apply(body.Settings); err != nil {
			log.Error("saving settings", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	all, err := settings.All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settingsBody{Settings: all})
}
