// internal/server/handlers.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/agent"
)

type startRequest struct {
	SessionID    string `json:"session_id"`
	Task         string `json:"task"`
	Mode         string `json:"mode"`         // "step" or "auto"
	SessionMode  string `json:"session_mode"` // "browser", "desktop", "background"
	ScreenWidth  int    `json:"screen_width"`
	ScreenHeight int    `json:"screen_height"`
	MaxSteps     int    `json:"max_steps"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": len(s.orch.Infos()),
	})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	decls := agent.Declarations()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools": decls,
		"count": len(decls),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.Task == "" {
		s.writeError(w, http.StatusBadRequest, "task is required")
		return
	}

	sessionMode := schemas.SessionMode(req.SessionMode)
	if req.SessionMode == "" {
		sessionMode = schemas.ModeBrowser
	}

	if _, err := s.orch.CreateSession(req.SessionID, req.Task, sessionMode, req.ScreenWidth, req.ScreenHeight); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("Agent task started.",
		zap.String("session_id", req.SessionID),
		zap.String("mode", req.Mode),
		zap.String("session_mode", string(sessionMode)))

	if req.Mode == "auto" {
		maxSteps := s.orch.ClampMaxSteps(req.MaxSteps)
		ctx, cancel := context.WithTimeout(r.Context(), s.loopTimeout(maxSteps))
		defer cancel()
		s.writeJSON(w, http.StatusOK, s.orch.RunLoop(ctx, req.SessionID, req.Task, maxSteps))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StepTimeout)
	defer cancel()
	s.writeJSON(w, http.StatusOK, s.orch.RunStep(ctx, req.SessionID, req.Task))
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StepTimeout)
	defer cancel()
	s.writeJSON(w, http.StatusOK, s.orch.RunStep(ctx, req.SessionID, ""))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("session_id"); id != "" {
		info, ok := s.orch.Info(id)
		if !ok {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("session %s does not exist", id))
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "session": info})
		return
	}
	infos := s.orch.Infos()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"sessions": infos,
		"count":    len(infos),
	})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	shot, ok := s.orch.LastScreenshot(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("session %s does not exist", id))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"session_id": id,
		"screenshot": shot,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	stopped := s.orch.Stop(req.SessionID)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stopped": stopped,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	cleared := s.orch.Clear(req.SessionID)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"cleared": cleared,
	})
}

// handleEvents streams session events as SSE. The bus subscriber supplies
// heartbeats on quiet intervals so proxies keep the connection open.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.bus.Subscribe(sessionID)
	defer s.bus.Unsubscribe(sub)

	s.logger.Info("Event stream opened.", zap.String("session_id", sessionID))
	defer s.logger.Info("Event stream closed.", zap.String("session_id", sessionID))

	connected := schemas.Event{
		Type:      schemas.EventConnected,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		SessionID: sessionID,
	}
	if err := writeSSE(w, flusher, connected); err != nil {
		return
	}

	for {
		event, err := sub.Next(r.Context())
		if err != nil {
			return
		}
		if err := writeSSE(w, flusher, event); err != nil {
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event schemas.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response.", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
