package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgerline/docaudit/internal/extract"
	"github.com/ledgerline/docaudit/internal/model"
	"github.com/ledgerline/docaudit/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for document submission and review",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := newRouter(env)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *auditEnv) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/documents", func(w http.ResponseWriter, req *http.Request) {
		doc, err := extract.ReadEnvelope(req.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		result := env.Orchestrator.Process(req.Context(), doc)
		status := http.StatusOK
		if result.Status == model.StatusFailed {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, result)
	})

	r.Get("/queue", func(w http.ResponseWriter, req *http.Request) {
		items, err := env.Orchestrator.PendingReviews(req.Context())
		if err != nil {
			zap.L().Error("list queue failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list queue"})
			return
		}
		writeJSON(w, http.StatusOK, items)
	})

	r.Post("/documents/{documentID}/feedback", func(w http.ResponseWriter, req *http.Request) {
		var fb model.Feedback
		if err := json.NewDecoder(req.Body).Decode(&fb); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		item, err := env.Orchestrator.SubmitDocumentFeedback(req.Context(), chi.URLParam(req, "documentID"), fb)
		writeFeedbackResult(w, item, err)
	})

	r.Post("/queue/{sessionID}/feedback", func(w http.ResponseWriter, req *http.Request) {
		var fb model.Feedback
		if err := json.NewDecoder(req.Body).Decode(&fb); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		item, err := env.Orchestrator.SubmitFeedback(req.Context(), chi.URLParam(req, "sessionID"), fb)
		writeFeedbackResult(w, item, err)
	})

	r.Get("/rules", func(w http.ResponseWriter, _ *http.Request) {
		rs := env.Orchestrator.Rules()
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    rs.Version,
			"thresholds": rs.Map(),
		})
	})

	return r
}

func writeFeedbackResult(w http.ResponseWriter, item model.HitlQueueItem, err error) {
	if err != nil {
		status := http.StatusBadRequest
		if eris.Is(err, workflow.ErrAlreadyReviewed) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
