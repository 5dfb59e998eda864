package http

import (
	"net/http"

	applog "fintrack/internal/log"
)

// handleDashboard serves the owner's aggregated summary. ?top=N sizes the
// largest-transactions list.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	topN := parseTopN(r.URL.Query(), s.opts.DefaultTopN)

	summary, err := s.deps.Dashboard.Summary(ctx, ownerFrom(ctx), topN)
	if err != nil {
		s.writeError(w, r, applog.OpSummary, err)
		return
	}
	NewJSONResponse().
		Header("Cache-Control", "private, no-cache").
		Body(summaryResponse{Summary: summary, Top: newTransactionList(summary.Top)}).
		Write(w)
}
