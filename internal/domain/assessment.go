package domain

import "time"

// Assessment form types.
const (
	FormTypeHealth    = "health"
	FormTypeLongevity = "longevity"
)

// Assessment is one submitted health or longevity questionnaire. identity_key
// is the tenancy boundary: it is the only column reads, deletes and the sync
// query are allowed to filter by.
type Assessment struct {
	AssessmentID   string           `json:"id" dynamodbav:"assessment_id"`
	IdentityKey    string           `json:"-" dynamodbav:"identity_key"`
	FormType       string           `json:"type" dynamodbav:"form_type"`
	SubmissionDate time.Time        `json:"date" dynamodbav:"submission_date"`
	Scores         AssessmentScores `json:"scores" dynamodbav:"scores"`
	FormData       string           `json:"data,omitempty" dynamodbav:"form_data"`
	Metrics        string           `json:"metrics,omitempty" dynamodbav:"calculated_metrics"`
	CreatedAt      time.Time        `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" dynamodbav:"updated_at"`
}

// AssessmentScores holds the calculated result figures for one submission.
type AssessmentScores struct {
	OverallHealth float64 `json:"overall" dynamodbav:"overall_health"`
	BMI           float64 `json:"bmi" dynamodbav:"bmi"`
	WHR           float64 `json:"whr" dynamodbav:"whr"`
	BiologicalAge float64 `json:"biological_age" dynamodbav:"biological_age"`
	AgeShift      float64 `json:"age_shift" dynamodbav:"age_shift"`
	Lifestyle     float64 `json:"lifestyle" dynamodbav:"lifestyle"`
}

// ProfileStats is the aggregate view returned by the profile endpoint,
// computed over the authenticated identity's assessments only.
type ProfileStats struct {
	TotalAssessments     int        `json:"total_assessments"`
	HealthAssessments    int        `json:"health_assessments"`
	LongevityAssessments int        `json:"longevity_assessments"`
	FirstAssessment      *time.Time `json:"first_assessment,omitempty"`
	LastAssessment       *time.Time `json:"last_assessment,omitempty"`
	AverageHealthScore   float64    `json:"average_health_score"`
}

// CreateAssessmentRequest is the payload for submitting a new assessment.
type CreateAssessmentRequest struct {
	FormType       string           `json:"type" validate:"required,oneof=health longevity"`
	SubmissionDate time.Time        `json:"date"`
	Scores         AssessmentScores `json:"scores"`
	FormData       string           `json:"data"`
	Metrics        string           `json:"metrics"`
}
