// Package export assembles reproducible, versioned snapshots of a project's
// annotated corpus. An export selects sentences by tier, applies a PII
// policy, and optionally carries a manifest binding the output to the
// project's validation versions.
package export

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/store"
	"github.com/amrlab/amrflow/internal/validation"
)

// Request describes one export.
type Request struct {
	ProjectID       int64
	Level           amr.ExportLevel
	Format          amr.ExportFormat
	PiiStrategy     amr.PiiStrategy
	IncludeManifest bool
	IncludeFailed   bool
	IncludeRejected bool
}

// Payload is the assembled export.
type Payload struct {
	ProjectID         int64          `json:"project_id"`
	ExportedAt        string         `json:"exported_at"`
	Records           []Record       `json:"records"`
	FailedSubmissions []FailedRecord `json:"failed_submissions"`
	Manifest          *Manifest      `json:"manifest,omitempty"`
}

// Record bundles a sentence with its annotations, reviews and adjudication.
type Record struct {
	Sentence     SentenceRecord      `json:"sentence"`
	Annotations  []AnnotationRecord  `json:"annotations"`
	Reviews      []ReviewRecord      `json:"reviews"`
	Adjudication *AdjudicationRecord `json:"adjudication"`
}

// SentenceRecord is the exported view of a sentence.
type SentenceRecord struct {
	ID            int64   `json:"id"`
	Text          string  `json:"text"`
	Source        *string `json:"source"`
	DifficultyTag *string `json:"difficulty_tag"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// AnnotationRecord is the exported view of an annotation with its parsed
// validity report.
type AnnotationRecord struct {
	ID             int64              `json:"id"`
	SentenceID     int64              `json:"sentence_id"`
	AuthorID       *int64             `json:"author_id"`
	Penman         string             `json:"penman"`
	ValidityReport *validation.Report `json:"validity_report"`
	CreatedAt      string             `json:"created_at"`
}

// ReviewRecord is the exported view of a review.
type ReviewRecord struct {
	ID           int64    `json:"id"`
	AnnotationID int64    `json:"annotation_id"`
	ReviewerID   *int64   `json:"reviewer_id"`
	Decision     string   `json:"decision"`
	Score        *float64 `json:"score"`
	Comment      *string  `json:"comment"`
	CreatedAt    string   `json:"created_at"`
}

// AdjudicationRecord is the exported view of an adjudication.
type AdjudicationRecord struct {
	ID                  int64   `json:"id"`
	SentenceID          int64   `json:"sentence_id"`
	CuratorID           *int64  `json:"curator_id"`
	FinalPenman         string  `json:"final_penman"`
	DecisionNote        *string `json:"decision_note"`
	SourceAnnotationIDs []int64 `json:"source_annotation_ids"`
	CreatedAt           string  `json:"created_at"`
}

// FailedRecord is the exported view of a failed submission.
type FailedRecord struct {
	ID              int64          `json:"id"`
	SentenceID      int64          `json:"sentence_id"`
	AssignmentID    *int64         `json:"assignment_id"`
	AnnotationID    *int64         `json:"annotation_id"`
	UserID          *int64         `json:"user_id"`
	ReviewerID      *int64         `json:"reviewer_id"`
	FailureType     string         `json:"failure_type"`
	Reason          string         `json:"reason"`
	Details         map[string]any `json:"details"`
	AmrVersion      *string        `json:"amr_version"`
	RoleSetVersion  *string        `json:"role_set_version"`
	RuleVersion     *string        `json:"rule_version"`
	SubmittedPenman *string        `json:"submitted_penman"`
	CreatedAt       string         `json:"created_at"`
}

// Manifest binds an export to its project versions and parameters.
type Manifest struct {
	Project ManifestProject `json:"project"`
	Export  ManifestExport  `json:"export"`
}

// ManifestProject carries the project metadata, including the version
// triple in force at export time.
type ManifestProject struct {
	ID                    int64   `json:"id"`
	Name                  string  `json:"name"`
	Language              string  `json:"language"`
	AmrVersion            string  `json:"amr_version"`
	RoleSetVersion        string  `json:"role_set_version"`
	ValidationRuleVersion string  `json:"validation_rule_version"`
	VersionTag            string  `json:"version_tag"`
	CreatedAt             string  `json:"created_at"`
	UpdatedAt             string  `json:"updated_at"`
}

// ManifestExport carries the export parameters and counts.
type ManifestExport struct {
	Level           string `json:"level"`
	Format          string `json:"format"`
	PiiStrategy     string `json:"pii_strategy"`
	IncludeFailed   bool   `json:"include_failed"`
	IncludeRejected bool   `json:"include_rejected"`
	RecordCount     int    `json:"record_count"`
	FailedCount     int    `json:"failed_count"`
	GeneratedAt     string `json:"generated_at"`
}

// Service assembles export payloads from storage.
type Service struct {
	db  store.Storage
	log *slog.Logger
}

// NewService creates an export service on top of the given storage.
func NewService(db store.Storage, log *slog.Logger) *Service {
	return &Service{
		db:  db,
		log: log,
	}
}

// Export assembles the payload for a request. Only admins and curators may
// export. The whole assembly runs inside one read transaction for a
// consistent snapshot.
func (s *Service) Export(ctx context.Context, actorRole amr.Role,
	req Request) (*Payload, error) {

	if actorRole != amr.RoleAdmin && actorRole != amr.RoleCurator {
		return nil, amr.NewError(amr.CodeExportAccess,
			"Yalnızca admin veya curator export alabilir")
	}

	var payload *Payload
	err := s.db.WithReadTx(ctx, func(ctx context.Context,
		db store.Storage) error {

		var err error
		payload, err = s.assemble(ctx, db, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "export assembled",
		"project_id", req.ProjectID, "level", req.Level,
		"records", len(payload.Records),
		"failed", len(payload.FailedSubmissions))

	return payload, nil
}

func (s *Service) assemble(ctx context.Context, db store.Storage,
	req Request) (*Payload, error) {

	project, err := db.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, amr.NewError(amr.CodeExportNotFound,
			"Proje bulunamadı")
	}

	pii := NewPiiFilter(req.PiiStrategy)
	validator := validation.NewService(project.AmrVersion,
		project.RoleSetVersion, project.ValidationRuleVersion)

	onlyFailed := req.Level == amr.LevelFailed ||
		req.Level == amr.LevelRejected

	var records []Record
	if !onlyFailed {
		records, err = s.assembleRecords(ctx, db, project, req.Level,
			pii, validator)
		if err != nil {
			return nil, err
		}
	}
	if records == nil {
		records = []Record{}
	}

	includeFailed := req.IncludeFailed || req.Level == amr.LevelFailed
	includeRejected := req.IncludeRejected || req.Level == amr.LevelRejected
	failed, err := s.assembleFailed(ctx, db, project.ID, includeFailed,
		includeRejected, pii)
	if err != nil {
		return nil, err
	}

	payload := &Payload{
		ProjectID:         project.ID,
		ExportedAt:        time.Now().UTC().Format(time.RFC3339),
		Records:           records,
		FailedSubmissions: failed,
	}
	if req.IncludeManifest {
		payload.Manifest = buildManifest(project, req, len(records),
			len(failed))
	}

	return payload, nil
}

// levelIncludes reports whether the export tier covers the status.
func levelIncludes(level amr.ExportLevel, status amr.SentenceStatus) bool {
	switch level {
	case amr.LevelGold:
		return status == amr.StatusAccepted
	case amr.LevelSilver:
		return status == amr.StatusAdjudicated ||
			status == amr.StatusInReview
	case amr.LevelAll:
		return true
	}
	return false
}

func (s *Service) assembleRecords(ctx context.Context, db store.Storage,
	project store.Project, level amr.ExportLevel, pii PiiFilter,
	validator *validation.Service) ([]Record, error) {

	sentences, err := db.ListSentences(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, sentence := range sentences {
		if !levelIncludes(level, sentence.Status) {
			continue
		}

		annotations, err := db.ListAnnotationsForSentence(
			ctx, sentence.ID,
		)
		if err != nil {
			return nil, err
		}

		record := Record{
			Sentence:    serializeSentence(sentence, pii),
			Annotations: make([]AnnotationRecord, 0, len(annotations)),
			Reviews:     []ReviewRecord{},
		}
		for _, annotation := range annotations {
			record.Annotations = append(record.Annotations,
				serializeAnnotation(annotation, validator, pii))

			reviews, err := db.ListReviewsForAnnotation(
				ctx, annotation.ID,
			)
			if err != nil {
				return nil, err
			}
			for _, review := range reviews {
				record.Reviews = append(record.Reviews,
					serializeReview(review, pii))
			}
		}

		adjudication, err := db.GetAdjudicationForSentence(
			ctx, sentence.ID,
		)
		switch {
		case err == nil:
			adj := serializeAdjudication(adjudication, pii)
			record.Adjudication = &adj
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}

		records = append(records, record)
	}
	return records, nil
}

func (s *Service) assembleFailed(ctx context.Context, db store.Storage,
	projectID int64, includeFailed, includeRejected bool,
	pii PiiFilter) ([]FailedRecord, error) {

	out := []FailedRecord{}
	if !includeFailed && !includeRejected {
		return out, nil
	}

	failures, err := db.ListFailedSubmissions(ctx, projectID)
	if err != nil {
		return nil, err
	}

	eligible := fn.Filter(failures,
		func(failure store.FailedSubmission) bool {
			isReject := failure.FailureType ==
				amr.FailureReviewReject
			if isReject {
				return includeRejected
			}
			return includeFailed
		})

	out = append(out, fn.Map(eligible,
		func(failure store.FailedSubmission) FailedRecord {
			return serializeFailed(failure, pii)
		})...)
	return out, nil
}

func serializeSentence(sentence store.Sentence, pii PiiFilter) SentenceRecord {
	return SentenceRecord{
		ID:            sentence.ID,
		Text:          sentence.Text,
		Source:        pii.Source(sentence.Source),
		DifficultyTag: sentence.DifficultyTag,
		Status:        string(sentence.Status),
		CreatedAt:     formatTime(sentence.CreatedAt),
		UpdatedAt:     formatTime(sentence.UpdatedAt),
	}
}

func serializeAnnotation(annotation store.Annotation,
	validator *validation.Service, pii PiiFilter) AnnotationRecord {

	// Prefer the stored report; if it no longer parses, recompute it.
	var report *validation.Report
	if annotation.ValidityReport != nil {
		parsed, err := validation.FromJSON(*annotation.ValidityReport)
		if err != nil {
			parsed = validator.Validate(annotation.PenmanText)
		}
		report = parsed
	}

	authorID := annotation.AuthorID
	return AnnotationRecord{
		ID:             annotation.ID,
		SentenceID:     annotation.SentenceID,
		AuthorID:       pii.UserID(&authorID),
		Penman:         annotation.PenmanText,
		ValidityReport: report,
		CreatedAt:      formatTime(annotation.CreatedAt),
	}
}

func serializeReview(review store.Review, pii PiiFilter) ReviewRecord {
	reviewerID := review.ReviewerID
	return ReviewRecord{
		ID:           review.ID,
		AnnotationID: review.AnnotationID,
		ReviewerID:   pii.UserID(&reviewerID),
		Decision:     string(review.Decision),
		Score:        review.Score,
		Comment:      review.Comment,
		CreatedAt:    formatTime(review.CreatedAt),
	}
}

func serializeAdjudication(adjudication store.Adjudication,
	pii PiiFilter) AdjudicationRecord {

	curatorID := adjudication.CuratorID
	return AdjudicationRecord{
		ID:                  adjudication.ID,
		SentenceID:          adjudication.SentenceID,
		CuratorID:           pii.UserID(&curatorID),
		FinalPenman:         adjudication.FinalPenman,
		DecisionNote:        adjudication.DecisionNote,
		SourceAnnotationIDs: adjudication.SourceAnnotationIDs,
		CreatedAt:           formatTime(adjudication.CreatedAt),
	}
}

func serializeFailed(failure store.FailedSubmission,
	pii PiiFilter) FailedRecord {

	return FailedRecord{
		ID:              failure.ID,
		SentenceID:      failure.SentenceID,
		AssignmentID:    failure.AssignmentID,
		AnnotationID:    failure.AnnotationID,
		UserID:          pii.UserID(failure.UserID),
		ReviewerID:      pii.UserID(failure.ReviewerID),
		FailureType:     string(failure.FailureType),
		Reason:          failure.Reason,
		Details:         pii.CleanseDetails(failure.Details),
		AmrVersion:      failure.AmrVersion,
		RoleSetVersion:  failure.RoleSetVersion,
		RuleVersion:     failure.RuleVersion,
		SubmittedPenman: failure.SubmittedPenman,
		CreatedAt:       formatTime(failure.CreatedAt),
	}
}

func buildManifest(project store.Project, req Request, recordCount,
	failedCount int) *Manifest {

	return &Manifest{
		Project: ManifestProject{
			ID:                    project.ID,
			Name:                  project.Name,
			Language:              project.Language,
			AmrVersion:            project.AmrVersion,
			RoleSetVersion:        project.RoleSetVersion,
			ValidationRuleVersion: project.ValidationRuleVersion,
			VersionTag:            project.VersionTag,
			CreatedAt:             formatTime(project.CreatedAt),
			UpdatedAt:             formatTime(project.UpdatedAt),
		},
		Export: ManifestExport{
			Level:           string(req.Level),
			Format:          string(req.Format),
			PiiStrategy:     string(req.PiiStrategy),
			IncludeFailed:   req.IncludeFailed,
			IncludeRejected: req.IncludeRejected,
			RecordCount:     recordCount,
			FailedCount:     failedCount,
			GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
