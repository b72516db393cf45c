package main

import (
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
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server",
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
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/jobs", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				TenantID string `json:"tenant_id"`
				EventID  string `json:"event_id"`
				ImageRef string `json:"image_ref"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.TenantID == "" || body.ImageRef == "" {
				writeError(w, http.StatusBadRequest, "tenant_id and image_ref are required")
				return
			}

			job, err := env.Store.CreateJob(req.Context(), body.TenantID, body.EventID, body.ImageRef)
			if err != nil {
				zap.L().Error("create job failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "create job failed")
				return
			}
			writeJSON(w, http.StatusCreated, job)
		})

		r.Post("/process", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				JobID string `json:"job_id"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.JobID == "" {
				writeError(w, http.StatusBadRequest, "job_id is required")
				return
			}

			job, err := env.Store.GetJob(req.Context(), body.JobID)
			if err != nil {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			claimed, err := env.Store.ClaimJob(req.Context(), job.ID)
			if err != nil {
				zap.L().Error("claim failed", zap.String("job_id", job.ID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "claim failed")
				return
			}
			if !claimed {
				writeError(w, http.StatusConflict, fmt.Sprintf("job is %s, not queued", job.Status))
				return
			}

			// Process asynchronously; the job row carries the outcome.
			go func() {
				if err := env.Pipeline.ProcessJob(ctx, job); err != nil {
					zap.L().Error("triggered processing failed",
						zap.String("job_id", job.ID),
						zap.Error(err),
					)
				}
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{
				"status": "accepted",
				"job_id": job.ID,
			})
		})

		r.Post("/retry_review", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				DocumentID string `json:"document_id"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.DocumentID == "" {
				writeError(w, http.StatusBadRequest, "document_id is required")
				return
			}

			rec, err := env.Pipeline.RetryAIReview(req.Context(), body.DocumentID)
			if err != nil {
				zap.L().Warn("retry review failed", zap.String("document_id", body.DocumentID), zap.Error(err))
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{
				"document_id":   rec.DocumentID,
				"review_status": string(rec.ReviewStatus),
			})
		})

		r.Get("/records/{documentID}", func(w http.ResponseWriter, req *http.Request) {
			rec, err := env.Store.GetReviewedRecord(req.Context(), chi.URLParam(req, "documentID"))
			if err != nil {
				zap.L().Error("get record failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "lookup failed")
				return
			}
			if rec == nil {
				writeError(w, http.StatusNotFound, "record not found")
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
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
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
