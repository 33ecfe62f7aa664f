// Package amr defines the closed enum sets and the stable domain error
// taxonomy shared by the workflow, validation and export services.
package amr

import "fmt"

// Role is a user or membership role. Global user roles and project-scoped
// membership roles draw from the same set.
type Role string

const (
	RoleGuest            Role = "guest"
	RolePending          Role = "pending"
	RoleAnnotator        Role = "annotator"
	RoleReviewer         Role = "reviewer"
	RoleCurator          Role = "curator"
	RoleAdmin            Role = "admin"
	RoleAssignmentEngine Role = "assignment_engine"
)

// ParseRole parses a role string, returning an error for unknown values.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleGuest, RolePending, RoleAnnotator, RoleReviewer,
		RoleCurator, RoleAdmin, RoleAssignmentEngine:

		return Role(s), nil
	}

	return "", fmt.Errorf("unknown role: %q", s)
}

// SentenceStatus is the lifecycle state of a sentence.
type SentenceStatus string

const (
	StatusNew         SentenceStatus = "NEW"
	StatusAssigned    SentenceStatus = "ASSIGNED"
	StatusSubmitted   SentenceStatus = "SUBMITTED"
	StatusInReview    SentenceStatus = "IN_REVIEW"
	StatusAdjudicated SentenceStatus = "ADJUDICATED"
	StatusAccepted    SentenceStatus = "ACCEPTED"
)

// AllSentenceStatuses lists every sentence status, in lifecycle order.
var AllSentenceStatuses = []SentenceStatus{
	StatusNew, StatusAssigned, StatusSubmitted,
	StatusInReview, StatusAdjudicated, StatusAccepted,
}

// ParseSentenceStatus parses a sentence status string.
func ParseSentenceStatus(s string) (SentenceStatus, error) {
	switch SentenceStatus(s) {
	case StatusNew, StatusAssigned, StatusSubmitted, StatusInReview,
		StatusAdjudicated, StatusAccepted:

		return SentenceStatus(s), nil
	}

	return "", fmt.Errorf("unknown sentence status: %q", s)
}

// ReviewDecision is a reviewer's verdict on an annotation.
type ReviewDecision string

const (
	DecisionApprove  ReviewDecision = "approve"
	DecisionNeedsFix ReviewDecision = "needs_fix"
	DecisionReject   ReviewDecision = "reject"
)

// ParseReviewDecision parses a review decision string.
func ParseReviewDecision(s string) (ReviewDecision, error) {
	switch ReviewDecision(s) {
	case DecisionApprove, DecisionNeedsFix, DecisionReject:
		return ReviewDecision(s), nil
	}

	return "", fmt.Errorf("unknown review decision: %q", s)
}

// AssignmentStrategy selects how the assignment engine picks annotators.
type AssignmentStrategy string

const (
	StrategyRoundRobin AssignmentStrategy = "round_robin"
	StrategySkillBased AssignmentStrategy = "skill_based"
)

// ParseAssignmentStrategy parses an assignment strategy string.
func ParseAssignmentStrategy(s string) (AssignmentStrategy, error) {
	switch AssignmentStrategy(s) {
	case StrategyRoundRobin, StrategySkillBased:
		return AssignmentStrategy(s), nil
	}

	return "", fmt.Errorf("unknown assignment strategy: %q", s)
}

// ExportLevel selects which sentences an export covers.
type ExportLevel string

const (
	// LevelGold exports only ACCEPTED sentences.
	LevelGold ExportLevel = "gold"

	// LevelSilver exports ADJUDICATED and IN_REVIEW sentences.
	LevelSilver ExportLevel = "silver"

	// LevelAll exports every sentence in the project.
	LevelAll ExportLevel = "all"

	// LevelFailed exports only failed-submission rows of type validation.
	LevelFailed ExportLevel = "failed"

	// LevelRejected exports only failed-submission rows of type
	// review_reject.
	LevelRejected ExportLevel = "rejected"
)

// ParseExportLevel parses an export level string.
func ParseExportLevel(s string) (ExportLevel, error) {
	switch ExportLevel(s) {
	case LevelGold, LevelSilver, LevelAll, LevelFailed, LevelRejected:
		return ExportLevel(s), nil
	}

	return "", fmt.Errorf("unknown export level: %q", s)
}

// ExportFormat selects the materialization format of an export.
type ExportFormat string

const (
	// FormatJSON writes a single pretty-printed JSON file.
	FormatJSON ExportFormat = "json"

	// FormatManifestJSON writes a ZIP archive holding data.json and
	// manifest.json.
	FormatManifestJSON ExportFormat = "manifest+json"
)

// ParseExportFormat parses an export format string.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case FormatJSON, FormatManifestJSON:
		return ExportFormat(s), nil
	}

	return "", fmt.Errorf("unknown export format: %q", s)
}

// PiiStrategy controls how personally identifying fields are treated on
// export.
type PiiStrategy string

const (
	PiiInclude   PiiStrategy = "include"
	PiiStrip     PiiStrategy = "strip"
	PiiAnonymize PiiStrategy = "anonymize"
)

// ParsePiiStrategy parses a PII strategy string.
func ParsePiiStrategy(s string) (PiiStrategy, error) {
	switch PiiStrategy(s) {
	case PiiInclude, PiiStrip, PiiAnonymize:
		return PiiStrategy(s), nil
	}

	return "", fmt.Errorf("unknown pii strategy: %q", s)
}

// JobStatus is the lifecycle state of an export job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ParseJobStatus parses a job status string.
func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case JobQueued, JobRunning, JobCompleted, JobFailed:
		return JobStatus(s), nil
	}

	return "", fmt.Errorf("unknown job status: %q", s)
}

// FailureType classifies a failed submission record.
type FailureType string

const (
	// FailureValidation marks a submit attempt rejected by the validator.
	FailureValidation FailureType = "validation"

	// FailureReviewReject marks an annotation rejected during review.
	FailureReviewReject FailureType = "review_reject"
)
