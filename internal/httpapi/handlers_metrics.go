package httpapi

import "net/http"

// handleGlobalMetrics serves GET /api/metrics/global: {bots_running,
// total_equity, total_pnl, total_trades}, aggregated across every bot the
// manager knows about.
func (s *Server) handleGlobalMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var metrics GlobalMetrics
	var openPositions int
	for _, st := range s.manager.StatusAll() {
		if st.Runner.Running {
			metrics.BotsRunning++
		}
		metrics.TotalEquity += st.Runner.Equity
		for _, pos := range st.Runner.Portfolio.Positions {
			metrics.TotalPnL += pos.RealizedPnL
			if pos.Quantity != 0 {
				openPositions++
			}
		}
		metrics.TotalTrades += len(st.Runner.Portfolio.Trades)
	}
	s.metrics.Equity.Set(metrics.TotalEquity)
	s.metrics.ActivePositions.Set(float64(openPositions))

	writeJSON(w, http.StatusOK, metrics)
}
