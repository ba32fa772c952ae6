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

	"github.com/sells-group/healthmap/internal/config"
	"github.com/sells-group/healthmap/internal/model"
	"github.com/sells-group/healthmap/internal/pipeline"
	"github.com/sells-group/healthmap/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored entities and on-demand enrichment over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initPipelineMode(ctx, config.ModeServe, cfg.Pipeline.UpdateExisting)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(&server{store: env.Store, pipeline: env.Pipeline, inferrer: env.Inferrer}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type entityRunner interface {
	Run(ctx context.Context, name string) (*model.Outcome, error)
}

type inferRunner interface {
	Run(ctx context.Context) (int, error)
}

// server holds the handlers' dependencies.
type server struct {
	store    store.Store
	pipeline entityRunner
	inferrer inferRunner
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/entities", func(r chi.Router) {
		r.Get("/", s.handleListEntities)
		r.Post("/", s.handleProcessEntity)
		r.Get("/{name}", s.handleGetEntity)
	})
	r.Post("/infer", s.handleInfer)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.LoadAll(r.Context())
	if err != nil {
		zap.L().Error("serve: list entities", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load entities")
		return
	}
	if recs == nil {
		recs = []model.EntityRecord{}
	}
	writeJSONStatus(w, http.StatusOK, recs)
}

func (s *server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, err := s.store.Load(r.Context(), model.StorageKey(name))
	if err != nil {
		zap.L().Error("serve: load entity", zap.String("entity", name), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	writeJSONStatus(w, http.StatusOK, rec)
}

// outcomeResponse is the wire form of one pipeline run.
type outcomeResponse struct {
	Name     string              `json:"name"`
	Key      string              `json:"key"`
	Stage    model.Stage         `json:"stage"`
	Record   *model.EntityRecord `json:"record,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
	Trace    []model.Stage       `json:"trace"`
	Error    string              `json:"error,omitempty"`
}

func (s *server) handleProcessEntity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	out, err := s.pipeline.Run(r.Context(), req.Name)
	if out == nil {
		writeError(w, http.StatusInternalServerError, "no outcome")
		return
	}
	resp := outcomeResponse{
		Name:     out.Name,
		Key:      out.Key,
		Stage:    out.Stage(),
		Record:   out.Record,
		Warnings: out.Warnings,
		Trace:    out.Trace,
		Error:    out.ErrMessage(),
	}

	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrUnresolvable):
		status = http.StatusNotFound
	default:
		status = http.StatusBadGateway
	}
	writeJSONStatus(w, status, resp)
}

func (s *server) handleInfer(w http.ResponseWriter, r *http.Request) {
	n, err := s.inferrer.Run(r.Context())
	switch {
	case err == nil:
		writeJSONStatus(w, http.StatusOK, map[string]int{"updated": n})
	case errors.Is(err, pipeline.ErrNoEntities):
		writeError(w, http.StatusConflict, "no entities stored")
	default:
		zap.L().Error("serve: infer", zap.Int("written", n), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, map[string]string{"error": msg})
}
