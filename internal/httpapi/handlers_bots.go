package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// handleBotsCollection serves GET /api/bots (list) and POST /api/bots
// (create), per spec.md §6.
func (s *Server) handleBotsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listBots(w, r)
	case http.MethodPost:
		s.protect(s.createBot)(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listBots(w http.ResponseWriter, r *http.Request) {
	ids := s.manager.IDs()
	out := make([]BotSummary, 0, len(ids))
	for _, id := range ids {
		rec, _ := s.botRecord(id)
		out = append(out, BotSummary{ID: id, Mode: rec.Mode, Status: s.statusLabel(id)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"bots": out})
}

func (s *Server) createBot(w http.ResponseWriter, r *http.Request) {
	var req CreateBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" || req.Strategy == "" || req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "id, strategy, and symbol are required")
		return
	}
	if req.Mode == "" {
		req.Mode = "paper"
	}
	if req.InitialBalance <= 0 {
		req.InitialBalance = 10000
	}

	if err := s.factory(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := BotRecord{
		ID:             req.ID,
		StrategyID:     req.Strategy,
		Symbol:         req.Symbol,
		Mode:           req.Mode,
		InitialBalance: req.InitialBalance,
		Parameters:     req.Parameters,
		CreatedAtMs:    time.Now().UnixMilli(),
	}
	s.recordBot(rec)
	if s.store != nil {
		if err := s.store.SaveBot(r.Context(), rec); err != nil {
			writeError(w, http.StatusInternalServerError, "bot created but could not be persisted: "+err.Error())
			return
		}
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleBotResource dispatches every /api/bots/{id}... route besides the
// bare collection: status, trades, risk, and the start/stop/kill actions.
func (s *Server) handleBotResource(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitBotPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !s.botExists(id) {
		writeError(w, http.StatusNotFound, "bot not found")
		return
	}

	switch action {
	case "start":
		s.protect(s.startBot(id))(w, r)
	case "stop":
		s.protect(s.stopBot(id))(w, r)
	case "kill":
		s.protect(s.killBot(id))(w, r)
	case "status":
		s.getStatus(id)(w, r)
	case "trades":
		s.getTrades(id)(w, r)
	case "risk":
		s.getRisk(id)(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) startBot(id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := s.manager.Start(context.Background(), id); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "bot started"})
	}
}

func (s *Server) stopBot(id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := s.manager.Stop(id); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "bot stopped"})
	}
}

func (s *Server) killBot(id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := s.manager.Stop(id); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.markKilled(id)
		writeJSON(w, http.StatusOK, map[string]string{"message": "bot killed"})
	}
}

func (s *Server) botExists(id string) bool {
	for _, existing := range s.manager.IDs() {
		if existing == id {
			return true
		}
	}
	return false
}

// statusLabel derives the {stopped, running, killed, error} label of
// spec.md §6 from the manager's per-bot status plus this server's kill
// bookkeeping (the manager itself has no notion of "killed" vs "stopped").
func (s *Server) statusLabel(id string) string {
	if s.isKilled(id) {
		return "killed"
	}
	st, err := s.manager.Status(id)
	if err != nil {
		return "error"
	}
	if st.Err != nil {
		return "error"
	}
	if st.Runner.Running {
		return "running"
	}
	return "stopped"
}
