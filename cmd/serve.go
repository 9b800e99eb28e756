package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-cli/internal/matcher"
	"github.com/sells-group/crm-cli/internal/resilience"
	"github.com/sells-group/crm-cli/internal/scorer"
	"github.com/sells-group/crm-cli/internal/store"
)

const (
	maxBodyBytes    = 10 << 20
	shutdownTimeout = 10 * time.Second
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the matching and scoring HTTP API",
	Long: `Serves:
  GET  /health
  POST /v1/match        {"candidates":[...], "input":{...}, "mappings":{...}}
  POST /v1/score        attributes
  POST /v1/score/batch  [{"id":..., "name":..., "attributes":{...}}]
  GET  /v1/matches      ?limit=N&offset=N, saved match records

When a match request omits candidates, the client pool and mappings are read
from the store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		scorerCfg, err := buildScorerConfig(cmd, cfg.Scorer)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a := &api{
			store:    st,
			scorer:   scorer.New(scorerCfg),
			workers:  scorerCfg.Concurrency,
			pageSize: cfg.Matcher.PageSize,
			policy:   retryPolicy(),
		}

		return startServer(ctx, buildRouter(a, cfg.Server.AllowedOrigins), resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// api holds the dependencies of the HTTP handlers. store may be nil, in
// which case match requests must carry their own candidates.
type api struct {
	store    store.Store
	scorer   *scorer.Scorer
	workers  int
	pageSize int
	policy   resilience.Policy
}

type matchRequest struct {
	Candidates []matcher.Candidate `json:"candidates"`
	Input      matcher.Input       `json:"input"`
	Mappings   map[string]string   `json:"mappings"`
}

func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

func buildRouter(a *api, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/match", a.handleMatch)
		r.Post("/score", a.handleScore)
		r.Post("/score/batch", a.handleScoreBatch)
		r.Get("/matches", a.handleListMatches)
	})
	return r
}

func (a *api) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	mappings := make(matcher.MappingTable, len(req.Mappings))
	for orig, client := range req.Mappings {
		mappings.Add(orig, client)
	}

	pool := req.Candidates
	if pool == nil {
		if a.store == nil {
			writeError(w, http.StatusBadRequest, "candidates are required")
			return
		}
		var err error
		pool, err = store.AllClients(r.Context(), a.store, a.pageSize, a.policy)
		if err != nil {
			zap.L().Error("match: load pool", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load client pool")
			return
		}
		stored, err := store.LoadMappingTable(r.Context(), a.store, a.pageSize, a.policy)
		if err != nil {
			zap.L().Error("match: load mappings", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load mappings")
			return
		}
		for orig, client := range stored {
			if _, ok := mappings[orig]; !ok {
				mappings[orig] = client
			}
		}
	}

	writeJSON(w, http.StatusOK, matcher.New(mappings).Match(pool, req.Input))
}

func (a *api) handleListMatches(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured")
		return
	}

	var page store.Page
	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %q", name, v))
			return
		}
		*dst = n
	}

	records, err := a.store.ListMatchRecords(r.Context(), page)
	if err != nil {
		zap.L().Error("matches: list", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list match records")
		return
	}
	if records == nil {
		records = []store.MatchRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *api) handleScore(w http.ResponseWriter, r *http.Request) {
	var attrs scorer.Attributes
	if !decodeBody(w, r, &attrs) {
		return
	}
	writeJSON(w, http.StatusOK, a.scorer.Score(attrs))
}

func (a *api) handleScoreBatch(w http.ResponseWriter, r *http.Request) {
	var prospects []scorer.Prospect
	if !decodeBody(w, r, &prospects) {
		return
	}
	results, err := scorer.ScoreAll(r.Context(), a.scorer, prospects, a.workers)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if results == nil {
		results = []scorer.ProspectScore{}
	}
	writeJSON(w, http.StatusOK, results)
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// startServer serves handler on port until ctx is done, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- eris.Wrap(err, "server listen")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}
