package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oxide-run/oxide/pkg/types"
)

// listSessions handles GET /session.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	metas, err := s.store.Enumerate(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metas)
}

// createSession handles POST /session.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.store.Create(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, types.SessionMetadata{SessionID: id})
}

// getSession handles GET /session/{sessionID}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	transcript, meta, err := s.store.Load(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Metadata   types.SessionMetadata `json:"metadata"`
		Transcript types.Transcript      `json:"transcript"`
	}{meta, transcript})
}

// deleteSession handles DELETE /session/{sessionID}.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.store.Delete(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// sendMessageRequest is the body of POST /session/{sessionID}/message.
type sendMessageRequest struct {
	Message string `json:"message"`
	Agent   string `json:"agent,omitempty"`
}

// sendMessage handles POST /session/{sessionID}/message: it runs the
// agent loop to completion and returns the final assistant text. Callers
// that want incremental updates should watch GET /event concurrently.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "message must not be empty")
		return
	}

	agentName := req.Agent
	if agentName == "" {
		agentName = s.defAgent
	}

	result, err := s.loop.Run(r.Context(), sessionID, agentName, req.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeProviderError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// listAgents handles GET /agent.
func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agents.List())
}
