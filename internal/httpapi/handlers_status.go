package httpapi

import "net/http"

// getStatus serves GET /api/bots/{id}/status: {pnl, positions[], balance, equity}.
func (s *Server) getStatus(id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		st, err := s.manager.Status(id)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		positions := make([]positionView, 0, len(st.Runner.Portfolio.Positions))
		realizedTotal := 0.0
		for _, pos := range st.Runner.Portfolio.Positions {
			realizedTotal += pos.RealizedPnL
			positions = append(positions, positionView{
				Symbol:       pos.Symbol,
				Quantity:     pos.Quantity,
				AverageEntry: pos.AverageEntryPrice,
				RealizedPnL:  pos.RealizedPnL,
			})
		}

		resp := StatusResponse{
			PnL:       realizedTotal,
			Positions: positions,
			Balance:   st.Runner.Portfolio.CashBalance,
			Equity:    st.Runner.Equity,
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// getTrades serves GET /api/bots/{id}/trades: the ordered list of executed
// fills recorded by the runner's portfolio ledger.
func (s *Server) getTrades(id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		st, err := s.manager.Status(id)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"trades": st.Runner.Portfolio.Trades})
	}
}

// getRisk serves GET /api/bots/{id}/risk: {evaluations[], kill_switch_activated}.
func (s *Server) getRisk(id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		st, err := s.manager.Status(id)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		evals := make([]riskViolationView, 0, len(st.Runner.RiskViolations))
		for _, v := range st.Runner.RiskViolations {
			evals = append(evals, riskViolationView{
				RuleName:  v.RuleName,
				Details:   v.Details,
				Observed:  v.Observed,
				Threshold: v.Threshold,
				Critical:  v.Critical,
			})
		}

		writeJSON(w, http.StatusOK, RiskResponse{
			Evaluations:      evals,
			KillSwitchActive: st.Runner.KillSwitchActivated,
		})
	}
}
