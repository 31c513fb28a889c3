package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"examintel/internal/app/apiresp"
	"examintel/internal/app/observability"
	"examintel/internal/auth"
	"examintel/internal/masterdata"
	"examintel/internal/ontology"
	"examintel/internal/question"
	"examintel/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// NewRouter wires services over db. rdb is optional; without it rate limits
// are kept per process.
func NewRouter(cfg Config, db *sql.DB, rdb *redis.Client, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	collector := observability.NewCollector(db, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(collector.Middleware)

	var limiter Limiter = NewIPRateLimiter(cfg.RateLimitPerMin, time.Minute)
	if rdb != nil {
		limiter = NewRedisRateLimiter(rdb, cfg.RateLimitPerMin, time.Minute)
	}

	masterSvc := masterdata.NewService(db)
	masterHandler := masterdata.NewHandler(masterSvc)

	questionSvc := question.NewService(db, cfg.PayloadSchemaStrict, log.Named("question"))
	questionHandler := question.NewHandler(questionSvc)

	ontologySvc := ontology.NewService(ontology.NewPostgresStore(db), log.Named("ontology"))
	ontologyHandler := ontology.NewHandler(ontologySvc)

	source := report.NewPostgresSource(db, masterSvc, questionSvc)
	reportSvc := report.NewService(source, source, log.Named("report"))
	reportHandler := report.NewHandler(reportSvc)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/readyz", readinessHandler(db, rdb))
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1/admin", func(admin chi.Router) {
		admin.Use(RateLimitMiddleware(limiter, log))
		admin.Use(auth.RequireGatewayUser)

		admin.Get("/lessons", masterHandler.ListLessons)
		admin.Get("/questions/{id}", questionHandler.Get)
		admin.Get("/ontology/unresolved-topics", ontologyHandler.ListUnresolvedTopics)
		admin.Get("/intelligence-report", reportHandler.IntelligenceReport)
		admin.Get("/intelligence-report.xlsx", reportHandler.IntelligenceReportExcel)

		admin.Group(func(curate chi.Router) {
			curate.Use(auth.RequireRoles(auth.RoleAdmin, auth.RoleCurator))
			curate.Post("/ontology/resolve-topic", ontologyHandler.ResolveTopic)
		})
		admin.Group(func(owner chi.Router) {
			owner.Use(auth.RequireRoles(auth.RoleAdmin))
			owner.Post("/taxonomy/seed", masterHandler.ImportSeed)
		})
	})

	return otelhttp.NewHandler(r, "examintel.http")
}

func readinessHandler(db *sql.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			apiresp.WriteError(w, r, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				apiresp.WriteError(w, r, http.StatusServiceUnavailable, "redis unavailable")
				return
			}
		}
		apiresp.WriteOK(w, r, http.StatusOK, map[string]bool{"ready": true})
	}
}
