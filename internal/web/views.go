package web

import (
	"time"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/store"
)

// Public JSON views over the store types. Password hashes and other internal
// fields never leave through these.

type userPublic struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     *string   `json:"email"`
	Role      amr.Role  `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserPublic(u store.User) userPublic {
	return userPublic{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

type tokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	UserID      int64    `json:"user_id"`
	Role        amr.Role `json:"role"`
}

type projectPublic struct {
	ID                    int64     `json:"id"`
	Name                  string    `json:"name"`
	Language              string    `json:"language"`
	AmrVersion            string    `json:"amr_version"`
	RoleSetVersion        string    `json:"role_set_version"`
	ValidationRuleVersion string    `json:"validation_rule_version"`
	VersionTag            string    `json:"version_tag"`
	Description           *string   `json:"description"`
	CreatedAt             time.Time `json:"created_at"`
}

func newProjectPublic(p store.Project) projectPublic {
	return projectPublic{
		ID:                    p.ID,
		Name:                  p.Name,
		Language:              p.Language,
		AmrVersion:            p.AmrVersion,
		RoleSetVersion:        p.RoleSetVersion,
		ValidationRuleVersion: p.ValidationRuleVersion,
		VersionTag:            p.VersionTag,
		Description:           p.Description,
		CreatedAt:             p.CreatedAt,
	}
}

type membershipPublic struct {
	UserID     int64      `json:"user_id"`
	ProjectID  int64      `json:"project_id"`
	Role       amr.Role   `json:"role"`
	IsActive   bool       `json:"is_active"`
	ApprovedAt *time.Time `json:"approved_at"`
}

func newMembershipPublic(m store.ProjectMembership) membershipPublic {
	return membershipPublic{
		UserID:     m.UserID,
		ProjectID:  m.ProjectID,
		Role:       m.Role,
		IsActive:   m.IsActive,
		ApprovedAt: m.ApprovedAt,
	}
}

type projectSummary struct {
	ProjectID      int64            `json:"project_id"`
	TotalSentences int64            `json:"total_sentences"`
	Statuses       map[string]int64 `json:"statuses"`
	MembersByRole  map[string]int64 `json:"members_by_role"`
}

type sentencePublic struct {
	ID            int64              `json:"id"`
	ProjectID     int64              `json:"project_id"`
	Text          string             `json:"text"`
	Source        *string            `json:"source"`
	DifficultyTag *string            `json:"difficulty_tag"`
	Status        amr.SentenceStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func newSentencePublic(s store.Sentence) sentencePublic {
	return sentencePublic{
		ID:            s.ID,
		ProjectID:     s.ProjectID,
		Text:          s.Text,
		Source:        s.Source,
		DifficultyTag: s.DifficultyTag,
		Status:        s.Status,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

type sentenceSearchHit struct {
	sentencePublic
	Rank float64 `json:"rank"`
}

type assignmentPublic struct {
	ID         int64     `json:"id"`
	SentenceID int64     `json:"sentence_id"`
	UserID     int64     `json:"user_id"`
	Role       amr.Role  `json:"role"`
	IsBlind    bool      `json:"is_blind"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

func newAssignmentPublic(a store.Assignment) assignmentPublic {
	return assignmentPublic{
		ID:         a.ID,
		SentenceID: a.SentenceID,
		UserID:     a.UserID,
		Role:       a.Role,
		IsBlind:    a.IsBlind,
		IsActive:   a.IsActive,
		CreatedAt:  a.CreatedAt,
	}
}

type annotationPublic struct {
	ID           int64     `json:"id"`
	SentenceID   int64     `json:"sentence_id"`
	AssignmentID *int64    `json:"assignment_id"`
	AuthorID     int64     `json:"author_id"`
	PenmanText   string    `json:"penman_text"`
	CreatedAt    time.Time `json:"created_at"`
}

func newAnnotationPublic(a store.Annotation) annotationPublic {
	return annotationPublic{
		ID:           a.ID,
		SentenceID:   a.SentenceID,
		AssignmentID: a.AssignmentID,
		AuthorID:     a.AuthorID,
		PenmanText:   a.PenmanText,
		CreatedAt:    a.CreatedAt,
	}
}

type adjudicationPublic struct {
	ID                  int64     `json:"id"`
	SentenceID          int64     `json:"sentence_id"`
	CuratorID           int64     `json:"curator_id"`
	FinalPenman         string    `json:"final_penman"`
	DecisionNote        *string   `json:"decision_note"`
	SourceAnnotationIDs []int64   `json:"source_annotation_ids"`
	CreatedAt           time.Time `json:"created_at"`
}

func newAdjudicationPublic(a store.Adjudication) adjudicationPublic {
	return adjudicationPublic{
		ID:                  a.ID,
		SentenceID:          a.SentenceID,
		CuratorID:           a.CuratorID,
		FinalPenman:         a.FinalPenman,
		DecisionNote:        a.DecisionNote,
		SourceAnnotationIDs: a.SourceAnnotationIDs,
		CreatedAt:           a.CreatedAt,
	}
}

type auditLogPublic struct {
	ID           int64          `json:"id"`
	ActorID      *int64         `json:"actor_id"`
	ActorRole    *string        `json:"actor_role"`
	Action       string         `json:"action"`
	EntityType   string         `json:"entity_type"`
	EntityID     *int64         `json:"entity_id"`
	BeforeStatus *string        `json:"before_status"`
	AfterStatus  *string        `json:"after_status"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

func newAuditLogPublic(l store.AuditLog) auditLogPublic {
	return auditLogPublic{
		ID:           l.ID,
		ActorID:      l.ActorID,
		ActorRole:    l.ActorRole,
		Action:       l.Action,
		EntityType:   l.EntityType,
		EntityID:     l.EntityID,
		BeforeStatus: l.BeforeStatus,
		AfterStatus:  l.AfterStatus,
		Metadata:     l.Metadata,
		CreatedAt:    l.CreatedAt,
	}
}

type auditLogPage struct {
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
	Items  []auditLogPublic `json:"items"`
}

type exportJobPublic struct {
	ID              int64            `json:"id"`
	ProjectID       int64            `json:"project_id"`
	CreatedBy       int64            `json:"created_by"`
	Status          amr.JobStatus    `json:"status"`
	Format          amr.ExportFormat `json:"format"`
	Level           amr.ExportLevel  `json:"level"`
	PiiStrategy     amr.PiiStrategy  `json:"pii_strategy"`
	IncludeManifest bool             `json:"include_manifest"`
	IncludeFailed   bool             `json:"include_failed"`
	IncludeRejected bool             `json:"include_rejected"`
	ResultPath      *string          `json:"result_path"`
	ErrorMessage    *string          `json:"error_message"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func newExportJobPublic(j store.ExportJob) exportJobPublic {
	return exportJobPublic{
		ID:              j.ID,
		ProjectID:       j.ProjectID,
		CreatedBy:       j.CreatedBy,
		Status:          j.Status,
		Format:          j.Format,
		Level:           j.Level,
		PiiStrategy:     j.PiiStrategy,
		IncludeManifest: j.IncludeManifest,
		IncludeFailed:   j.IncludeFailed,
		IncludeRejected: j.IncludeRejected,
		ResultPath:      j.ResultPath,
		ErrorMessage:    j.ErrorMessage,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}
