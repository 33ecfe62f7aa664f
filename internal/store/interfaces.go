// Package store defines the persistence interfaces and domain types for the
// annotation platform, along with a SQLite-backed implementation and an
// in-memory mock for tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// UserStore handles user and profile persistence operations.
type UserStore interface {
	// CreateUser creates a new user in the database.
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)

	// GetUser retrieves a user by its ID.
	GetUser(ctx context.Context, id int64) (User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (User, error)

	// ListUsersByRole retrieves all users with the given global role.
	ListUsersByRole(ctx context.Context, role amr.Role) ([]User, error)

	// SetUserRole updates a user's global role and active flag.
	SetUserRole(ctx context.Context, id int64, role amr.Role,
		isActive bool) (User, error)

	// UpsertUserProfile creates or replaces the profile for a user.
	UpsertUserProfile(ctx context.Context,
		params UpsertUserProfileParams) (UserProfile, error)

	// GetUserProfile retrieves the profile for a user.
	GetUserProfile(ctx context.Context, userID int64) (UserProfile, error)

	// GetUserProfiles retrieves the profiles for a set of users. Users
	// without a profile are omitted from the result.
	GetUserProfiles(ctx context.Context,
		userIDs []int64) ([]UserProfile, error)
}

// ProjectStore handles project and membership persistence operations.
type ProjectStore interface {
	// CreateProject creates a new project.
	CreateProject(ctx context.Context,
		params CreateProjectParams) (Project, error)

	// GetProject retrieves a project by its ID.
	GetProject(ctx context.Context, id int64) (Project, error)

	// ListProjects retrieves all projects ordered by ID.
	ListProjects(ctx context.Context) ([]Project, error)

	// CountSentencesByStatus returns per-status sentence counts for a
	// project.
	CountSentencesByStatus(ctx context.Context,
		projectID int64) (map[amr.SentenceStatus]int64, error)

	// CountMembershipsByRole returns per-role membership counts for a
	// project, counting only active approved memberships.
	CountMembershipsByRole(ctx context.Context,
		projectID int64) (map[amr.Role]int64, error)

	// CreateMembership creates a new project membership. The membership
	// starts inactive and unapproved.
	CreateMembership(ctx context.Context,
		params CreateMembershipParams) (ProjectMembership, error)

	// GetMembership retrieves the membership of a user in a project.
	GetMembership(ctx context.Context, userID,
		projectID int64) (ProjectMembership, error)

	// ApproveMembership marks a membership active with the given approval
	// time.
	ApproveMembership(ctx context.Context, id int64,
		approvedAt time.Time) (ProjectMembership, error)

	// UpdateMembership changes a membership's role or active flag. Nil
	// fields keep their current value.
	UpdateMembership(ctx context.Context,
		params UpdateMembershipParams) (ProjectMembership, error)

	// ListMemberships retrieves all memberships of a project.
	ListMemberships(ctx context.Context,
		projectID int64) ([]ProjectMembership, error)

	// ListEligibleMembers returns the user ids holding an active,
	// approved membership with the given role in the project.
	ListEligibleMembers(ctx context.Context, projectID int64,
		role amr.Role) ([]int64, error)
}

// SentenceStore handles sentence persistence operations.
type SentenceStore interface {
	// CreateSentence creates a new sentence in status NEW.
	CreateSentence(ctx context.Context,
		params CreateSentenceParams) (Sentence, error)

	// GetSentence retrieves a sentence by its ID.
	GetSentence(ctx context.Context, id int64) (Sentence, error)

	// ListSentences retrieves all sentences of a project ordered by ID.
	ListSentences(ctx context.Context, projectID int64) ([]Sentence, error)

	// UpdateSentenceStatus sets a sentence's status and bumps its
	// updated_at timestamp.
	UpdateSentenceStatus(ctx context.Context, id int64,
		status amr.SentenceStatus) (Sentence, error)

	// SearchSentences performs a full-text search over sentence text and
	// source within a project.
	SearchSentences(ctx context.Context, projectID int64, query string,
		limit int) ([]SentenceSearchResult, error)
}

// AssignmentStore handles assignment persistence operations.
type AssignmentStore interface {
	// CreateAssignment creates a new active assignment.
	CreateAssignment(ctx context.Context,
		params CreateAssignmentParams) (Assignment, error)

	// GetAssignment retrieves an assignment by its ID.
	GetAssignment(ctx context.Context, id int64) (Assignment, error)

	// ListAssignmentsForSentence retrieves all assignments of a sentence.
	ListAssignmentsForSentence(ctx context.Context,
		sentenceID int64) ([]Assignment, error)

	// ListActiveAssignmentsForSentence retrieves the active assignments
	// of a sentence.
	ListActiveAssignmentsForSentence(ctx context.Context,
		sentenceID int64) ([]Assignment, error)

	// GetActiveAssignmentForUser retrieves the caller's active assignment
	// on a sentence, if any.
	GetActiveAssignmentForUser(ctx context.Context, sentenceID,
		userID int64) (Assignment, error)

	// DeactivateAssignment marks an assignment inactive.
	DeactivateAssignment(ctx context.Context, id int64) error

	// CountActiveAssignments returns, per user, the number of active
	// assignments with the given role across a project's sentences.
	CountActiveAssignments(ctx context.Context, projectID int64,
		role amr.Role) (map[int64]int64, error)
}

// AnnotationStore handles annotation persistence operations.
type AnnotationStore interface {
	// CreateAnnotation creates a new annotation.
	CreateAnnotation(ctx context.Context,
		params CreateAnnotationParams) (Annotation, error)

	// GetAnnotation retrieves an annotation by its ID.
	GetAnnotation(ctx context.Context, id int64) (Annotation, error)

	// ListAnnotationsForSentence retrieves all annotations of a sentence.
	ListAnnotationsForSentence(ctx context.Context,
		sentenceID int64) ([]Annotation, error)
}

// ReviewStore handles review persistence operations.
type ReviewStore interface {
	// CreateReview creates a new review.
	CreateReview(ctx context.Context,
		params CreateReviewParams) (Review, error)

	// ListReviewsForAnnotation retrieves all reviews of an annotation.
	ListReviewsForAnnotation(ctx context.Context,
		annotationID int64) ([]Review, error)

	// HasRejectReview reports whether any annotation of the sentence has
	// a reject review.
	HasRejectReview(ctx context.Context, sentenceID int64) (bool, error)
}

// AdjudicationStore handles adjudication persistence operations.
type AdjudicationStore interface {
	// CreateAdjudication creates a new adjudication.
	CreateAdjudication(ctx context.Context,
		params CreateAdjudicationParams) (Adjudication, error)

	// GetAdjudicationForSentence retrieves the most recent adjudication
	// of a sentence.
	GetAdjudicationForSentence(ctx context.Context,
		sentenceID int64) (Adjudication, error)
}

// FailureStore handles failed-submission persistence operations.
type FailureStore interface {
	// CreateFailedSubmission creates a new failed-submission record.
	CreateFailedSubmission(ctx context.Context,
		params CreateFailedSubmissionParams) (FailedSubmission, error)

	// ListFailedSubmissions retrieves all failed submissions of a
	// project ordered by ID.
	ListFailedSubmissions(ctx context.Context,
		projectID int64) ([]FailedSubmission, error)
}

// AuditStore handles audit-log persistence operations.
type AuditStore interface {
	// CreateAuditLog appends an audit-log entry.
	CreateAuditLog(ctx context.Context,
		params CreateAuditLogParams) (AuditLog, error)

	// ListAuditLogs retrieves audit-log entries matching the filter,
	// ordered by created_at then ID.
	ListAuditLogs(ctx context.Context,
		filter AuditLogFilter) ([]AuditLog, error)
}

// ExportJobStore handles export-job persistence operations.
type ExportJobStore interface {
	// CreateExportJob creates a new export job in status queued.
	CreateExportJob(ctx context.Context,
		params CreateExportJobParams) (ExportJob, error)

	// GetExportJob retrieves an export job by its ID.
	GetExportJob(ctx context.Context, id int64) (ExportJob, error)

	// ListExportJobs retrieves all export jobs of a project ordered by
	// ID descending.
	ListExportJobs(ctx context.Context,
		projectID int64) ([]ExportJob, error)

	// NextQueuedExportJob retrieves the oldest queued export job.
	// Returns ErrNotFound when the queue is empty.
	NextQueuedExportJob(ctx context.Context) (ExportJob, error)

	// UpdateExportJobStatus updates a job's status and optionally its
	// result path or error message.
	UpdateExportJobStatus(ctx context.Context,
		params UpdateExportJobStatusParams) (ExportJob, error)
}

// Storage is the composed persistence interface the services depend on.
type Storage interface {
	UserStore
	ProjectStore
	SentenceStore
	AssignmentStore
	AnnotationStore
	ReviewStore
	AdjudicationStore
	FailureStore
	AuditStore
	ExportJobStore

	// WithTx executes a function within a write database transaction.
	WithTx(ctx context.Context,
		fn func(ctx context.Context, s Storage) error) error

	// WithReadTx executes a function within a read-only database
	// transaction. This ensures consistent snapshot reads across multiple
	// queries.
	WithReadTx(ctx context.Context,
		fn func(ctx context.Context, s Storage) error) error

	// Close closes the store and releases resources.
	Close() error
}

// Domain model types.

// User represents a platform user.
type User struct {
	ID             int64
	Username       string
	Email          *string
	HashedPassword string
	Role           amr.Role
	IsActive       bool
	CreatedAt      time.Time
}

// UserProfile carries a user's skill tags for skill-based assignment.
type UserProfile struct {
	ID        int64
	UserID    int64
	Skills    []string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Project represents an annotation project. The version triple
// (AmrVersion, RoleSetVersion, ValidationRuleVersion) pins the validation
// rules used for every annotation in the project.
type Project struct {
	ID                    int64
	Name                  string
	Language              string
	AmrVersion            string
	RoleSetVersion        string
	ValidationRuleVersion string
	VersionTag            string
	Description           *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ProjectMembership ties a user to a project with a project-scoped role. A
// user participates only when IsActive and ApprovedAt is set.
type ProjectMembership struct {
	ID         int64
	UserID     int64
	ProjectID  int64
	Role       amr.Role
	IsActive   bool
	ApprovedAt *time.Time
	CreatedAt  time.Time
}

// Sentence is the unit of annotation work.
type Sentence struct {
	ID            int64
	ProjectID     int64
	Text          string
	Source        *string
	DifficultyTag *string
	Status        amr.SentenceStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SentenceSearchResult is a sentence with its full-text search rank.
type SentenceSearchResult struct {
	Sentence
	Rank float64
}

// Assignment ties an annotator (or reviewer) to a sentence. Assignments are
// never deleted, only deactivated.
type Assignment struct {
	ID         int64
	SentenceID int64
	UserID     int64
	Role       amr.Role
	IsBlind    bool
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Annotation is a submitted, validated PENMAN graph for a sentence.
type Annotation struct {
	ID             int64
	SentenceID     int64
	AssignmentID   *int64
	AuthorID       int64
	PenmanText     string
	ValidityReport *string
	CreatedAt      time.Time
}

// Review records a reviewer's decision on an annotation.
type Review struct {
	ID           int64
	AnnotationID int64
	ReviewerID   int64
	Decision     amr.ReviewDecision
	Score        *float64
	Comment      *string
	CreatedAt    time.Time
}

// Adjudication records a curator's final merged PENMAN for a sentence.
type Adjudication struct {
	ID                  int64
	SentenceID          int64
	CuratorID           int64
	FinalPenman         string
	DecisionNote        *string
	SourceAnnotationIDs []int64
	CreatedAt           time.Time
}

// FailedSubmission is an append-only record of a rejected or invalid
// submission, stamped with the project versions in force at the time.
type FailedSubmission struct {
	ID              int64
	ProjectID       int64
	SentenceID      int64
	AssignmentID    *int64
	AnnotationID    *int64
	UserID          *int64
	ReviewerID      *int64
	FailureType     amr.FailureType
	Reason          string
	Details         map[string]any
	AmrVersion      *string
	RoleSetVersion  *string
	RuleVersion     *string
	SubmittedPenman *string
	CreatedAt       time.Time
}

// AuditLog is an append-only record of a state change or privileged action.
type AuditLog struct {
	ID           int64
	ActorID      *int64
	ActorRole    *string
	Action       string
	EntityType   string
	EntityID     *int64
	BeforeStatus *string
	AfterStatus  *string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// ExportJob is a persistent export request processed by the export worker.
type ExportJob struct {
	ID              int64
	ProjectID       int64
	CreatedBy       int64
	Status          amr.JobStatus
	Format          amr.ExportFormat
	Level           amr.ExportLevel
	PiiStrategy     amr.PiiStrategy
	Filters         map[string]string
	IncludeManifest bool
	IncludeFailed   bool
	IncludeRejected bool
	ResultPath      *string
	ErrorMessage    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Parameter types.

// CreateUserParams holds the fields for creating a user.
type CreateUserParams struct {
	Username       string
	Email          *string
	HashedPassword string
	Role           amr.Role
}

// UpsertUserProfileParams holds the fields for creating or replacing a
// user profile.
type UpsertUserProfileParams struct {
	UserID   int64
	Skills   []string
	IsActive bool
}

// CreateProjectParams holds the fields for creating a project.
type CreateProjectParams struct {
	Name                  string
	Language              string
	AmrVersion            string
	RoleSetVersion        string
	ValidationRuleVersion string
	VersionTag            string
	Description           *string
}

// CreateMembershipParams holds the fields for creating a membership.
type CreateMembershipParams struct {
	UserID    int64
	ProjectID int64
	Role      amr.Role
}

// UpdateMembershipParams holds the fields for a membership update. Nil
// fields are left unchanged. When IsActive flips to true on a membership
// that was never approved, ApprovedAt should carry the approval time.
type UpdateMembershipParams struct {
	ID         int64
	Role       *amr.Role
	IsActive   *bool
	ApprovedAt *time.Time
}

// CreateSentenceParams holds the fields for creating a sentence.
type CreateSentenceParams struct {
	ProjectID     int64
	Text          string
	Source        *string
	DifficultyTag *string
}

// CreateAssignmentParams holds the fields for creating an assignment.
type CreateAssignmentParams struct {
	SentenceID int64
	UserID     int64
	Role       amr.Role
	IsBlind    bool
}

// CreateAnnotationParams holds the fields for creating an annotation.
type CreateAnnotationParams struct {
	SentenceID     int64
	AssignmentID   *int64
	AuthorID       int64
	PenmanText     string
	ValidityReport *string
}

// CreateReviewParams holds the fields for creating a review.
type CreateReviewParams struct {
	AnnotationID int64
	ReviewerID   int64
	Decision     amr.ReviewDecision
	Score        *float64
	Comment      *string
}

// CreateAdjudicationParams holds the fields for creating an adjudication.
type CreateAdjudicationParams struct {
	SentenceID          int64
	CuratorID           int64
	FinalPenman         string
	DecisionNote        *string
	SourceAnnotationIDs []int64
}

// CreateFailedSubmissionParams holds the fields for creating a
// failed-submission record.
type CreateFailedSubmissionParams struct {
	ProjectID       int64
	SentenceID      int64
	AssignmentID    *int64
	AnnotationID    *int64
	UserID          *int64
	ReviewerID      *int64
	FailureType     amr.FailureType
	Reason          string
	Details         map[string]any
	AmrVersion      *string
	RoleSetVersion  *string
	RuleVersion     *string
	SubmittedPenman *string
}

// CreateAuditLogParams holds the fields for appending an audit-log entry.
type CreateAuditLogParams struct {
	ActorID      *int64
	ActorRole    *string
	Action       string
	EntityType   string
	EntityID     *int64
	BeforeStatus *string
	AfterStatus  *string
	Metadata     map[string]any
}

// AuditLogFilter narrows an audit-log listing. Nil fields match everything.
type AuditLogFilter struct {
	ActorID    *int64
	Action     *string
	EntityType *string
	EntityID   *int64
	Limit      int
	Offset     int
}

// CreateExportJobParams holds the fields for creating an export job.
type CreateExportJobParams struct {
	ProjectID       int64
	CreatedBy       int64
	Format          amr.ExportFormat
	Level           amr.ExportLevel
	PiiStrategy     amr.PiiStrategy
	Filters         map[string]string
	IncludeManifest bool
	IncludeFailed   bool
	IncludeRejected bool
}

// UpdateExportJobStatusParams holds the fields for an export-job status
// update.
type UpdateExportJobStatusParams struct {
	ID           int64
	Status       amr.JobStatus
	ResultPath   *string
	ErrorMessage *string
}
