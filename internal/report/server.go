// Package report serves the cached aggregate statistics over HTTP.
package report

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matviet/outbound-cli/internal/model"
	"github.com/matviet/outbound-cli/internal/stats"
	"github.com/matviet/outbound-cli/internal/store"
)

// Options configures the report router.
type Options struct {
	// CORSOrigins lists the browser origins allowed to read the API.
	// Empty allows any origin.
	CORSOrigins []string
	// Metrics serves the Prometheus registry; nil uses promhttp.Handler.
	Metrics http.Handler
}

// Server answers report queries from the aggregate cache.
type Server struct {
	store store.Store
	log   *zap.Logger
}

// StatsResponse is the body of both stats endpoints.
type StatsResponse struct {
	Grouping model.Grouping        `json:"grouping"`
	Channel  model.Channel         `json:"channel,omitempty"`
	Count    int                   `json:"count"`
	Stats    []model.AggregateStat `json:"stats"`
}

// NewRouter builds the HTTP handler for the report API.
func NewRouter(s store.Store, opts Options) http.Handler {
	srv := &Server{
		store: s,
		log:   zap.L().With(zap.String("component", "report")),
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	metricsHandler := opts.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(srv.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", srv.health)
	r.Method(http.MethodGet, "/metrics", metricsHandler)
	r.Route("/stats", func(r chi.Router) {
		r.Get("/monthly", srv.listStats(model.GroupingMonthly))
		r.Get("/campaigns", srv.listStats(model.GroupingCampaign))
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listStats(g model.Grouping) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channel, err := model.ParseChannel(r.URL.Query().Get("channel"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		var rows []model.AggregateStat
		if g == model.GroupingCampaign {
			rows, err = stats.ListCampaigns(r.Context(), s.store, channel)
		} else {
			rows, err = stats.ListMonthly(r.Context(), s.store, channel)
		}
		if err != nil {
			s.log.Error("list stats failed",
				zap.String("grouping", string(g)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "failed to read statistics")
			return
		}
		if rows == nil {
			rows = []model.AggregateStat{}
		}

		writeJSON(w, http.StatusOK, StatsResponse{
			Grouping: g,
			Channel:  channel,
			Count:    len(rows),
			Stats:    rows,
		})
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
