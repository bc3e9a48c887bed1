package http

import (
	"github.com/healthtrack-api/internal/application/audit"
	"github.com/healthtrack-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/healthtrack-api/internal/infrastructure/jwt"
	"github.com/healthtrack-api/internal/infrastructure/smtp"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	VerificationRepo *dynamo.VerificationRepo
	SessionRepo      *dynamo.SessionRepo
	RateLimitRepo    *dynamo.RateLimitRepo
	AssessmentRepo   *dynamo.AssessmentRepo
	AuditRepo        *dynamo.AuditRepo
	Mailer           smtp.Mailer
	JWTProvider      *jwtinfra.Provider
	Audit            audit.Recorder
}
