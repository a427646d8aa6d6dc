package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zkrollup-network/batch-submitter/pkg/metrics"
	"github.com/zkrollup-network/batch-submitter/x/l1"
	"github.com/zkrollup-network/batch-submitter/x/storage"
)

const readinessTimeout = 5 * time.Second

// Routes wires the operational endpoints onto a server: liveness, readiness,
// pipeline statistics and the prometheus scrape endpoint.
type Routes struct {
	Store   storage.Store
	Client  l1.Client
	Version string
}

// Register mounts all routes on the server's router.
func (rt Routes) Register(s *Server) {
	s.Router.HandleFunc("/health", rt.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/ready", rt.handleReady).Methods(http.MethodGet)
	s.Router.HandleFunc("/stats", rt.handleStats).Methods(http.MethodGet)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

func (rt Routes) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": rt.Version,
	})
}

// handleReady reports 503 until both the database and the L1 RPC answer.
func (rt Routes) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if _, err := rt.Store.CountByStatus(ctx); err != nil {
		WriteError(w, r, http.StatusServiceUnavailable, "storage_unavailable", "database not reachable", err.Error())
		return
	}
	if _, err := rt.Client.BlockNumber(ctx); err != nil {
		WriteError(w, r, http.StatusServiceUnavailable, "l1_unavailable", "L1 RPC not reachable", err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (rt Routes) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := rt.Store.CountByStatus(r.Context())
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "stats_failed", "counting batches", err.Error())
		return
	}

	byStatus := make(map[string]int64, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"batches":   byStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
