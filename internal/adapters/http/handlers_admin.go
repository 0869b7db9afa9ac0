package web

import (
	"net/http"
	"strconv"
	"time"

	"dropin/internal/domain/outbox"
)

// handleListOutbox lists receipt deliveries. ?status=all shows the pending
// queue, anything else the entries that gave up.
func (s *server) handleListOutbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 100 {
		limit = n
	}

	var entries []outbox.Entry
	var err error
	if r.URL.Query().Get("status") == "all" {
		entries, err = s.deps.Stores.Outbox.ListPending(ctx, limit)
	} else {
		entries, err = s.deps.Stores.Outbox.ListFailed(ctx, limit)
	}
	if err != nil {
		internalError(w, err)
		return
	}
	if entries == nil {
		entries = []outbox.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *server) handleRetryOutbox(w http.ResponseWriter, r *http.Request) {
	if s.deps.Outbox == nil {
		writeError(w, http.StatusServiceUnavailable, "outbox processing is not configured")
		return
	}
	if err := s.deps.Outbox.ProcessSingle(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "retry triggered"})
}

func (s *server) handleAbandonOutbox(w http.ResponseWriter, r *http.Request) {
	if s.deps.Outbox == nil {
		writeError(w, http.StatusServiceUnavailable, "outbox processing is not configured")
		return
	}
	if err := s.deps.Outbox.AbandonEntry(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
}

// handlePerf reports timings over ?window= (a Go duration, default 15m).
func (s *server) handlePerf(w http.ResponseWriter, r *http.Request) {
	if s.deps.Perf == nil {
		writeError(w, http.StatusServiceUnavailable, "perf collection is disabled")
		return
	}
	window := 15 * time.Minute
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "window must be a positive duration such as 5m")
			return
		}
		window = d
	}
	writeJSON(w, http.StatusOK, s.deps.Perf.Snapshot(s.now().Add(-window), 10))
}
