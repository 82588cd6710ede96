package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/bot"
	"github.com/greenghost107/TradersMind-chartBot/internal/retention"
	"github.com/greenghost107/TradersMind-chartBot/internal/threads"
	"github.com/greenghost107/TradersMind-chartBot/internal/tracking"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	retention.Status
	Threads int     `json:"threads"`
	Uptime  float64 `json:"uptime"`
	Version string  `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:  s.engine.Status(),
		Threads: s.threads.Len(),
		Uptime:  time.Since(s.started).Seconds(),
		Version: s.version,
	})
}

// The tick runs to completion even when the client goes away.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	summary := s.engine.TriggerCleanupNow(r.Context())
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleTracked(w http.ResponseWriter, r *http.Request) {
	kind := tracking.Kind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown kind: "+string(kind))
		return
	}

	out := []tracking.Artifact{}
	for _, a := range s.registry.Snapshot() {
		if kind == "" || a.Kind == kind {
			out = append(out, a)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	handles := s.threads.Handles()
	if handles == nil {
		handles = []threads.Handle{}
	}
	writeJSON(w, http.StatusOK, handles)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "run history needs a database")
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, 500)
		}
	}
	runs, err := s.db.RecentRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleMessageEvent(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event handling not configured")
		return
	}
	var ev bot.MessageEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if ev.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id required")
		return
	}

	msg, err := s.events.HandleMessage(r.Context(), ev)
	if err != nil {
		s.logger.Warn("server: message event failed", "conversation_id", ev.ConversationID, "error", err)
		writeClassified(w, err)
		return
	}
	if msg == nil {
		writeJSON(w, http.StatusOK, map[string]any{"posted": false})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"posted": true, "message_id": msg.ID})
}

func (s *Server) handleButtonEvent(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event handling not configured")
		return
	}
	var ev bot.ButtonEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	reply, err := s.events.HandleButton(r.Context(), ev)
	if err != nil {
		s.logger.Warn("server: button event failed", "user_id", ev.UserID, "custom_id", ev.CustomID, "error", err)
		writeClassified(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}
