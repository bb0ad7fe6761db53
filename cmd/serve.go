package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/member-qa/internal/cache"
	"github.com/sells-group/member-qa/internal/hybrid"
	"github.com/sells-group/member-qa/internal/model"
	"github.com/sells-group/member-qa/internal/monitoring"
)

var servePort int

// asker is the part of hybrid.Orchestrator the HTTP shell uses.
type asker interface {
	Ask(ctx context.Context, question string) (*hybrid.Response, error)
}

// snapshotFunc reports the currently cached snapshot without I/O.
type snapshotFunc func() *model.DatasetSnapshot

// statsFunc summarizes recent answer outcomes.
type statsFunc func() *monitoring.MetricsSnapshot

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP question-answering server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(env.Monitor, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}
		stats := func() *monitoring.MetricsSnapshot {
			return env.Monitor.Collect(cfg.Monitoring.LookbackWindowHours)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env.Orchestrator, env.Cache.Current, stats, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the HTTP shell around a.
func newRouter(a asker, current snapshotFunc, stats statsFunc, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"service": "member-qa",
			"endpoints": map[string]string{
				"/ask":    "POST - ask a question about member data",
				"/health": "GET - health check",
				"/stats":  "GET - recent answer outcomes",
			},
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if snap := current(); snap != nil {
			body["snapshot_id"] = snap.ID
			body["records"] = snap.Len()
			body["fetched_at"] = snap.FetchedAt.UTC().Format(time.RFC3339)
		}
		writeJSON(w, http.StatusOK, body)
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stats())
	})

	r.Post("/ask", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := a.Ask(r.Context(), req.Question)
		switch {
		case err == nil:
		case errors.Is(err, hybrid.ErrEmptyQuestion):
			writeError(w, http.StatusBadRequest, "question cannot be empty")
			return
		case errors.Is(err, cache.ErrNoDataAvailable):
			writeError(w, http.StatusServiceUnavailable, "member data unavailable")
			return
		default:
			zap.L().Error("ask failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "error processing question")
			return
		}

		if resp.Stale {
			w.Header().Set("Warning", `110 - "Response is Stale"`)
		}
		w.Header().Set("X-Request-Id", resp.RequestID)
		writeJSON(w, http.StatusOK, resp.Answer)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
