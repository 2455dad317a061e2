package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/haasonsaas/orchestrator/internal/errs"
)

// chatResponse is the POST /api/chat payload.
type chatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	Events    any    `json:"events"`
}

// handleChat accepts a form-encoded turn: message, optional session_id.
// An absent session_id creates a new session, via the same
// create-on-first-reference convention the session manager uses.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, errs.New(errs.KindInvalidInput, "malformed form body"))
		return
	}
	message := r.FormValue("message")
	if message == "" {
		writeError(w, errs.New(errs.KindInvalidInput, "message is required"))
		return
	}
	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	runner := s.Sessions.GetOrCreate(sessionID)
	result, err := runner.HandleTurn(r.Context(), message)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		SessionID: result.SessionID,
		Response:  result.Response,
		Events:    result.Events,
	})
}

// handleSessionsList returns metadata for every known session.
func (s *Server) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/sessions/" {
		writeError(w, errs.New(errs.KindUnknownResource, "unknown route"))
		return
	}
	writeJSON(w, http.StatusOK, s.Sessions.List())
}

type createSessionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSessionsCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // absent body means unnamed session
	}
	runner := s.Sessions.Create(req.Name)
	writeJSON(w, http.StatusOK, runner.SessionMeta())
}

type renameSessionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSessionsRename(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	runner, ok := s.Sessions.Get(id)
	if !ok {
		writeError(w, errs.New(errs.KindUnknownResource, "unknown session: "+id))
		return
	}
	var req renameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, errs.New(errs.KindInvalidInput, "name is required"))
		return
	}
	runner.Rename(req.Name)
	writeJSON(w, http.StatusOK, runner.SessionMeta())
}

func (s *Server) handleSessionsDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Sessions.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSessionsReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	runner, ok := s.Sessions.Get(id)
	if !ok {
		writeError(w, errs.New(errs.KindUnknownResource, "unknown session: "+id))
		return
	}
	runner.Reset()
	writeJSON(w, http.StatusOK, runner.SessionMeta())
}

// handleEvents returns the full event buffer for a session, for clients
// that poll instead of holding a WS connection open.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	runner, ok := s.Sessions.Get(id)
	if !ok {
		writeError(w, errs.New(errs.KindUnknownResource, "unknown session: "+id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": runner.Events()})
}

type agentInfoResponse struct {
	AgentName   string            `json:"agent_name"`
	Model       string            `json:"model"`
	AgentModels map[string]string `json:"agent_models"`
}

// handleAgentInfo reports the root agent's name/model plus every
// registered agent's model, for clients that surface "which model
// answered" in their UI.
func (s *Server) handleAgentInfo(w http.ResponseWriter, r *http.Request) {
	root, ok := s.Hierarchy.Get(s.Hierarchy.Root())
	if !ok {
		writeError(w, errs.New(errs.KindInternal, "root agent is not registered"))
		return
	}
	models := map[string]string{}
	for _, name := range s.Hierarchy.Names() {
		if a, ok := s.Hierarchy.Get(name); ok {
			models[name] = a.Model
		}
	}
	writeJSON(w, http.StatusOK, agentInfoResponse{
		AgentName:   root.Name,
		Model:       root.Model,
		AgentModels: models,
	})
}

// handleTools lists every tool known to the registry.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Tools.All())
}
