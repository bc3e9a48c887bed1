package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthtrack-api/internal/application/audit"
	"github.com/healthtrack-api/internal/application/sweeper"
	"github.com/healthtrack-api/internal/config"
	"github.com/healthtrack-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/healthtrack-api/internal/infrastructure/jwt"
	s3infra "github.com/healthtrack-api/internal/infrastructure/s3"
	"github.com/healthtrack-api/internal/infrastructure/smtp"
	"github.com/healthtrack-api/internal/infrastructure/sns"
	transporthttp "github.com/healthtrack-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("token provider: %v", err)
	}

	// SMTP mailer.
	mailer := smtp.NewMailer(cfg)

	// SNS security alert publisher (optional — graceful fallback).
	var alerts sns.AlertPublisher
	if p, err := sns.NewPublisher(cfg); err == nil {
		alerts = p
	} else {
		log.Printf("WARN: SNS alert publisher not available: %v", err)
	}

	verificationRepo := dynamo.NewVerificationRepo(dynamoClient, cfg.DynamoTables.VerificationCodes)
	sessionRepo := dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions)
	rateLimitRepo := dynamo.NewRateLimitRepo(dynamoClient, cfg.DynamoTables.RateLimits)
	auditRepo := dynamo.NewAuditRepo(dynamoClient, cfg.DynamoTables.AuditLog)
	assessmentRepo := dynamo.NewAssessmentRepo(dynamoClient, cfg.DynamoTables.Assessments)

	recorder := audit.NewRecorder(auditRepo, alerts)

	deps := &transporthttp.Deps{
		VerificationRepo: verificationRepo,
		SessionRepo:      sessionRepo,
		RateLimitRepo:    rateLimitRepo,
		AssessmentRepo:   assessmentRepo,
		AuditRepo:        auditRepo,
		Mailer:           mailer,
		JWTProvider:      jwtProvider,
		Audit:            recorder,
	}

	router := transporthttp.NewRouter(cfg, deps)

	// Retention sweeper: expired codes/sessions/windows plus audit archival.
	var archiver sweeper.Archiver
	if cfg.AuditArchiveBucket != "" {
		archiver = s3infra.NewArchiveStore(s3infra.NewClient(cfg), cfg.AuditArchiveBucket)
	} else {
		log.Println("WARN: audit archive bucket not configured, expired audit rows are deleted without a copy")
	}
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go sweeper.New(sweeper.Deps{
		Verifications:  verificationRepo,
		Sessions:       sessionRepo,
		RateLimits:     rateLimitRepo,
		Audit:          auditRepo,
		Archiver:       archiver,
		Interval:       cfg.SweepInterval,
		AuditRetention: cfg.AuditRetention,
		RateLimitGrace: 24 * time.Hour,
	}).Run(sweepCtx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopSweeper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
