package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/usecase-cli/internal/extract"
	"github.com/sells-group/usecase-cli/internal/model"
	"github.com/sells-group/usecase-cli/internal/pipeline"
	"github.com/sells-group/usecase-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for analysis requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/versions", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				ProjectID string `json:"project_id"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.ProjectID == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "project_id is required"})
				return
			}
			v, err := env.Store.CreateVersion(req.Context(), body.ProjectID)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusCreated, v)
		})

		r.Get("/versions/{versionID}", func(w http.ResponseWriter, req *http.Request) {
			versionID := chi.URLParam(req, "versionID")
			v, err := env.Store.GetVersion(req.Context(), versionID)
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
				return
			}
			units, err := env.Store.ListUnits(req.Context(), versionID, store.UnitFilter{})
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"version": v,
				"status":  v.Status(),
				"units":   len(units),
			})
		})

		r.Post("/versions/{versionID}/analyze", func(w http.ResponseWriter, req *http.Request) {
			versionID := chi.URLParam(req, "versionID")

			var body struct {
				Text  string `json:"text"`
				Mode  string `json:"mode"`
				Force bool   `json:"force"`
				Files []struct {
					Name    string `json:"name"`
					Content string `json:"content_base64"`
				} `json:"files"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}

			if _, err := env.Store.GetVersion(req.Context(), versionID); err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
				return
			}

			files := make([]extract.File, 0, len(body.Files))
			for _, f := range body.Files {
				content, err := base64.StdEncoding.DecodeString(f.Content)
				if err != nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("file %s: invalid base64", f.Name)})
					return
				}
				files = append(files, extract.File{Name: f.Name, Content: content})
			}

			// The run continues in the background; failures land on the
			// version's processing-error list.
			env.Orchestrator.RunAsync(req.Context(), pipeline.RunRequest{
				VersionID:  versionID,
				Files:      files,
				RawText:    body.Text,
				Mode:       model.RunMode(body.Mode),
				ForceRetry: body.Force,
			})
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":  "accepted",
				"version": versionID,
			})
		})

		r.Post("/versions/{versionID}/conflicts/{conflictID}/resolve", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Keep string `json:"keep"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			summary, err := pipeline.ResolveDuplicate(req.Context(), env.Store,
				chi.URLParam(req, "versionID"), chi.URLParam(req, "conflictID"), body.Keep)
			if err != nil {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, summary)
		})

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
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
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
