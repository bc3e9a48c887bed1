package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/healthtrack-api/internal/application/assessment"
	"github.com/healthtrack-api/internal/application/auth"
	"github.com/healthtrack-api/internal/config"
	"github.com/healthtrack-api/internal/transport/http/handler"
	appmiddleware "github.com/healthtrack-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(appmiddleware.BlockSuspiciousClients(deps.Audit))

	// In-process burst protection in front of the durable per-window counters:
	// 5 requests/second, burst of 10, per remote IP.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	authSvc := auth.NewService(auth.Deps{
		Verifications: deps.VerificationRepo,
		Sessions:      deps.SessionRepo,
		RateLimits:    deps.RateLimitRepo,
		Tokens:        deps.JWTProvider,
		Mailer:        deps.Mailer,
		Audit:         deps.Audit,
		AuditLog:      deps.AuditRepo,
		Limits: auth.Limits{
			CodeTTL:            cfg.CodeTTL,
			CodeMaxAttempts:    cfg.CodeMaxAttempts,
			CodeRequestLimit:   cfg.CodeRequestLimit,
			CodeRequestWindow:  cfg.CodeRequestWindow,
			CodeRequestIPLimit: cfg.CodeRequestIPLimit,
		},
	})
	assessmentSvc := assessment.NewService(assessment.Deps{
		Assessments: deps.AssessmentRepo,
		Audit:       deps.Audit,
	})

	guard := appmiddleware.NewGuard(appmiddleware.GuardDeps{
		Tokens:     deps.JWTProvider,
		Sessions:   deps.SessionRepo,
		RateLimits: deps.RateLimitRepo,
		Audit:      deps.Audit,
		APILimit:   cfg.APIRequestLimit,
		APIWindow:  cfg.APIRequestWindow,
	})

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc)
	assessmentH := handler.NewAssessmentHandler(assessmentSvc)
	profileH := handler.NewProfileHandler(assessmentSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health", healthH.Check)
		r.With(sensitiveRL.Limit).Post("/auth/request-code", authH.RequestCode)
		r.With(sensitiveRL.Limit).Post("/auth/verify-code", authH.VerifyCode)
		r.With(sensitiveRL.Limit).Post("/auth/refresh", authH.Refresh)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(guard.Authenticate)

			r.Post("/auth/logout", authH.Logout)

			r.Get("/user/profile", profileH.Profile)
			r.Get("/user/activity", authH.Activity)
			r.Post("/user/sync", profileH.Sync)

			r.Get("/assessments", assessmentH.List)
			r.Post("/assessments", assessmentH.Create)
			r.Get("/assessments/{id}", assessmentH.Get)
			r.Delete("/assessments/{id}", assessmentH.Delete)
		})
	})

	return r
}
