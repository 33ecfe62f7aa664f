package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/assign"
	"github.com/amrlab/amrflow/internal/audit"
	"github.com/amrlab/amrflow/internal/store"
	"github.com/amrlab/amrflow/internal/validation"
)

// Service orchestrates the sentence lifecycle. Every operation runs in a
// single database transaction: guard checks, writes and the audit entry
// commit together or not at all.
type Service struct {
	db  store.Storage
	log *slog.Logger
}

// NewService creates a workflow service on top of the given storage.
func NewService(db store.Storage, log *slog.Logger) *Service {
	return &Service{
		db:  db,
		log: log,
	}
}

// CreateSentenceRequest carries the payload for ingesting a sentence.
type CreateSentenceRequest struct {
	Text          string
	Source        *string
	DifficultyTag *string
}

// AssignRequest carries the payload for assigning a sentence.
type AssignRequest struct {
	Strategy            amr.AssignmentStrategy
	Role                amr.Role
	Count               int
	RequiredSkills      []string
	ProvidedAssignees   []int64
	IsBlind             bool
	AllowMultiple       bool
	ReassignAfterReject bool
}

// ReviewRequest carries a reviewer's verdict on an annotation.
type ReviewRequest struct {
	AnnotationID     int64
	Decision         amr.ReviewDecision
	Score            *float64
	Comment          *string
	IsMultiAnnotator bool
}

// AdjudicateRequest carries a curator's final merged graph.
type AdjudicateRequest struct {
	FinalPenman         string
	DecisionNote        *string
	SourceAnnotationIDs []int64
}

// SubmitResult is the tagged outcome of a submit attempt. Exactly one of
// Annotation or Report is meaningful: a valid submission yields the stored
// annotation, a failed validation yields the report that rejected it.
type SubmitResult struct {
	Annotation store.Annotation
	Report     *validation.Report
}

// CreateSentence ingests a sentence into a project in status NEW. Requires
// admin or a curator membership on the project.
func (s *Service) CreateSentence(ctx context.Context, actor Actor,
	projectID int64, req CreateSentenceRequest) (store.Sentence, error) {

	var sentence store.Sentence
	err := s.db.WithTx(ctx, func(ctx context.Context,
		db store.Storage) error {

		if _, err := getProject(ctx, db, projectID); err != nil {
			return err
		}

		actingRole, err := RequireRoles(actor,
			[]amr.Role{amr.RoleAdmin, amr.RoleCurator}, true)
		if err != nil {
			return err
		}

		sentence, err = db.CreateSentence(ctx, store.CreateSentenceParams{
			ProjectID:     projectID,
			Text:          req.Text,
			Source:        req.Source,
			DifficultyTag: req.DifficultyTag,
		})
		if err != nil {
			return fmt.Errorf("unable to create sentence: %w", err)
		}

		after := sentence.Status
		_, err = audit.Record(ctx, db, audit.Entry{
			ActorID:     &actor.UserID,
			ActorRole:   &actingRole,
			Action:      audit.ActionSentenceCreated,
			EntityType:  audit.EntitySentence,
			EntityID:    &sentence.ID,
			AfterStatus: &after,
			Metadata: map[string]any{
				"project_id":     projectID,
				"source":         req.Source,
				"difficulty_tag": req.DifficultyTag,
			},
		})
		return err
	})
	if err != nil {
		return store.Sentence{}, err
	}

	s.log.InfoContext(ctx, "sentence created",
		"sentence_id", sentence.ID, "project_id", projectID)

	return sentence, nil
}

// Assign selects annotators via the assignment engine and attaches them to
// the sentence. Reassignment after a reject deactivates the previous
// assignments and excludes their holders from re-selection.
func (s *Service) Assign(ctx context.Context, actor Actor, sentenceID int64,
	req AssignRequest) ([]store.Assignment, error) {

	var created []store.Assignment
	err := s.db.WithTx(ctx, func(ctx context.Context,
		db store.Storage) error {

		sentence, err := getSentence(ctx, db, sentenceID)
		if err != nil {
			return err
		}

		active, err := db.ListActiveAssignmentsForSentence(
			ctx, sentenceID,
		)
		if err != nil {
			return err
		}

		err = EnsureAssignmentAllowed(sentence.Status, len(active) > 0,
			req.AllowMultiple, req.ReassignAfterReject)
		if err != nil {
			return err
		}

		exclude := make(map[int64]struct{})
		var deactivatedIDs []int64
		if req.ReassignAfterReject {
			hasRejection, err := db.HasRejectReview(ctx, sentenceID)
			if err != nil {
				return err
			}
			if err := RequireRejectionForReassignment(
				hasRejection); err != nil {

				return err
			}

			for _, a := range active {
				if err := db.DeactivateAssignment(
					ctx, a.ID); err != nil {

					return err
				}
				deactivatedIDs = append(deactivatedIDs, a.ID)
				exclude[a.UserID] = struct{}{}
			}
		}

		actingRole := actor.ActingRole()
		err = EnsureTransition(
			sentence.Status, amr.StatusAssigned, actingRole,
		)
		if err != nil {
			return err
		}

		assignees, err := assign.SelectAssignees(ctx, db, assign.Request{
			ProjectID:         sentence.ProjectID,
			Strategy:          req.Strategy,
			Role:              req.Role,
			Count:             req.Count,
			RequiredSkills:    req.RequiredSkills,
			ProvidedAssignees: req.ProvidedAssignees,
			ExcludeUserIDs:    exclude,
		})
		if err != nil {
			return err
		}

		created = created[:0]
		for _, userID := range assignees {
			a, err := db.CreateAssignment(ctx,
				store.CreateAssignmentParams{
					SentenceID: sentenceID,
					UserID:     userID,
					Role:       req.Role,
					IsBlind:    req.IsBlind,
				})
			if err != nil {
				return fmt.Errorf("unable to create "+
					"assignment: %w", err)
			}
			created = append(created, a)
		}

		before := sentence.Status
		if _, err := db.UpdateSentenceStatus(
			ctx, sentenceID, amr.StatusAssigned); err != nil {

			return err
		}

		after := amr.StatusAssigned
		_, err = audit.Record(ctx, db, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    &actingRole,
			Action:       audit.ActionSentenceAssigned,
			EntityType:   audit.EntitySentence,
			EntityID:     &sentenceID,
			BeforeStatus: &before,
			AfterStatus:  &after,
			Metadata: map[string]any{
				"assignee_ids":    assignees,
				"assignee_role":   req.Role,
				"strategy":        req.Strategy,
				"requested_count": req.Count,
				"is_blind":        req.IsBlind,
				"deactivated_ids": deactivatedIDs,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "sentence assigned",
		"sentence_id", sentenceID, "assignments", len(created))

	return created, nil
}

// Submit validates the caller's PENMAN and stores it as an annotation. A
// validation failure persists a FailedSubmission, leaves the sentence status
// untouched and returns the report alongside a ValidationFailed error; the
// failure record commits even though the submission is rejected.
func (s *Service) Submit(ctx context.Context, actor Actor, sentenceID int64,
	penmanText string) (SubmitResult, error) {

	var (
		result        SubmitResult
		validationErr error
	)
	err := s.db.WithTx(ctx, func(ctx context.Context,
		db store.Storage) error {

		sentence, err := getSentence(ctx, db, sentenceID)
		if err != nil {
			return err
		}

		assignment, err := db.GetActiveAssignmentForUser(
			ctx, sentenceID, actor.UserID,
		)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return amr.NewError(amr.CodeTransitionForbidden,
					"Atama bulunamadı")
			}
			return err
		}

		actingRole := actor.ActingRole()
		err = EnsureTransition(
			sentence.Status, amr.StatusSubmitted, actingRole,
		)
		if err != nil {
			return err
		}

		project, err := getProject(ctx, db, sentence.ProjectID)
		if err != nil {
			return err
		}

		validator := validation.NewService(project.AmrVersion,
			project.RoleSetVersion, project.ValidationRuleVersion)
		report := validator.Validate(penmanText)

		if !report.IsValid {
			// The failure record is the durable outcome here, so
			// the transaction commits; the error surfaces after.
			err := recordValidationFailure(ctx, db, project,
				sentence, assignment, actor.UserID, penmanText,
				report)
			if err != nil {
				return err
			}

			result.Report = report
			validationErr = amr.NewError(amr.CodeValidationFailed,
				"AMR doğrulaması başarısız oldu.")
			return nil
		}

		serialized, err := report.ToJSON()
		if err != nil {
			return fmt.Errorf("unable to serialize validation "+
				"report: %w", err)
		}

		annotation, err := db.CreateAnnotation(ctx,
			store.CreateAnnotationParams{
				SentenceID:     sentenceID,
				AssignmentID:   &assignment.ID,
				AuthorID:       actor.UserID,
				PenmanText:     *report.CanonicalPenman,
				ValidityReport: &serialized,
			})
		if err != nil {
			return fmt.Errorf("unable to create annotation: %w",
				err)
		}

		before := sentence.Status
		if _, err := db.UpdateSentenceStatus(
			ctx, sentenceID, amr.StatusSubmitted); err != nil {

			return err
		}

		after := amr.StatusSubmitted
		_, err = audit.Record(ctx, db, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    &actingRole,
			Action:       audit.ActionAnnotationSubmitted,
			EntityType:   audit.EntitySentence,
			EntityID:     &sentenceID,
			BeforeStatus: &before,
			AfterStatus:  &after,
			Metadata: map[string]any{
				"annotation_id": annotation.ID,
				"assignment_id": assignment.ID,
			},
		})
		if err != nil {
			return err
		}

		result.Annotation = annotation
		result.Report = report
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	if validationErr != nil {
		s.log.InfoContext(ctx, "submission rejected by validator",
			"sentence_id", sentenceID, "user_id", actor.UserID)
		return result, validationErr
	}

	s.log.InfoContext(ctx, "annotation submitted",
		"sentence_id", sentenceID, "annotation_id", result.Annotation.ID)

	return result, nil
}

// Review records a reviewer's verdict and advances the sentence to the
// decision's target status. Approve and reject close the annotation's
// assignment; targets past review lock all remaining assignments. A reject
// additionally persists a review_reject FailedSubmission.
func (s *Service) Review(ctx context.Context, actor Actor, sentenceID int64,
	req ReviewRequest) (store.Sentence, error) {

	var updated store.Sentence
	err := s.db.WithTx(ctx, func(ctx context.Context,
		db store.Storage) error {

		sentence, err := getSentence(ctx, db, sentenceID)
		if err != nil {
			return err
		}

		target, err := ReviewToTarget(req.Decision, req.IsMultiAnnotator)
		if err != nil {
			return err
		}

		actingRole := actor.ActingRole()
		before := sentence.Status
		current := sentence.Status

		if current == amr.StatusSubmitted {
			err := EnsureTransition(
				current, amr.StatusInReview, actingRole,
			)
			if err != nil {
				return err
			}
			current = amr.StatusInReview
		}
		if err := EnsureTransition(current, target, actingRole); err != nil {
			return err
		}

		annotation, err := db.GetAnnotation(ctx, req.AnnotationID)
		if err != nil || annotation.SentenceID != sentenceID {
			return amr.NewError(amr.CodeNotFound,
				"Geçersiz anotasyon")
		}

		var deactivatedIDs []int64
		if ShouldCloseAssignmentForReview(req.Decision) &&
			annotation.AssignmentID != nil {

			err := db.DeactivateAssignment(
				ctx, *annotation.AssignmentID,
			)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if err == nil {
				deactivatedIDs = append(deactivatedIDs,
					*annotation.AssignmentID)
			}
		}
		if ShouldLockAssignmentsForTarget(target) {
			active, err := db.ListActiveAssignmentsForSentence(
				ctx, sentenceID,
			)
			if err != nil {
				return err
			}
			for _, a := range active {
				if err := db.DeactivateAssignment(
					ctx, a.ID); err != nil {

					return err
				}
				deactivatedIDs = append(deactivatedIDs, a.ID)
			}
		}

		review, err := db.CreateReview(ctx, store.CreateReviewParams{
			AnnotationID: req.AnnotationID,
			ReviewerID:   actor.UserID,
			Decision:     req.Decision,
			Score:        req.Score,
			Comment:      req.Comment,
		})
		if err != nil {
			return fmt.Errorf("unable to create review: %w", err)
		}

		updated, err = db.UpdateSentenceStatus(ctx, sentenceID, target)
		if err != nil {
			return err
		}

		if req.Decision == amr.DecisionReject {
			err := recordReviewReject(ctx, db, sentence, annotation,
				actor.UserID, req.Comment)
			if err != nil {
				return err
			}
		}

		_, err = audit.Record(ctx, db, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    &actingRole,
			Action:       audit.ActionReviewRecorded,
			EntityType:   audit.EntitySentence,
			EntityID:     &sentenceID,
			BeforeStatus: &before,
			AfterStatus:  &target,
			Metadata: map[string]any{
				"review_id":          review.ID,
				"annotation_id":      req.AnnotationID,
				"decision":           req.Decision,
				"score":              req.Score,
				"is_multi_annotator": req.IsMultiAnnotator,
				"deactivated_ids":    deactivatedIDs,
			},
		})
		return err
	})
	if err != nil {
		return store.Sentence{}, err
	}

	s.log.InfoContext(ctx, "review recorded",
		"sentence_id", sentenceID, "decision", req.Decision,
		"status", updated.Status)

	return updated, nil
}

// Adjudicate records the curator's final merged PENMAN for a sentence in
// review and locks all remaining assignments.
func (s *Service) Adjudicate(ctx context.Context, actor Actor,
	sentenceID int64, req AdjudicateRequest) (store.Adjudication, error) {

	var adjudication store.Adjudication
	err := s.db.WithTx(ctx, func(ctx context.Context,
		db store.Storage) error {

		sentence, err := getSentence(ctx, db, sentenceID)
		if err != nil {
			return err
		}

		actingRole, err := RequireRoles(actor,
			[]amr.Role{amr.RoleAdmin, amr.RoleCurator}, true)
		if err != nil {
			return err
		}

		if sentence.Status != amr.StatusInReview {
			return amr.NewError(amr.CodeConflict,
				"Cümle curation/review aşamasında değil.")
		}
		err = EnsureTransition(
			sentence.Status, amr.StatusAdjudicated, actingRole,
		)
		if err != nil {
			return err
		}

		active, err := db.ListActiveAssignmentsForSentence(
			ctx, sentenceID,
		)
		if err != nil {
			return err
		}
		for _, a := range active {
			if err := db.DeactivateAssignment(ctx, a.ID); err != nil {
				return err
			}
		}

		adjudication, err = db.CreateAdjudication(ctx,
			store.CreateAdjudicationParams{
				SentenceID:          sentenceID,
				CuratorID:           actor.UserID,
				FinalPenman:         req.FinalPenman,
				DecisionNote:        req.DecisionNote,
				SourceAnnotationIDs: req.SourceAnnotationIDs,
			})
		if err != nil {
			return fmt.Errorf("unable to create adjudication: %w",
				err)
		}

		before := sentence.Status
		if _, err := db.UpdateSentenceStatus(
			ctx, sentenceID, amr.StatusAdjudicated); err != nil {

			return err
		}

		after := amr.StatusAdjudicated
		_, err = audit.Record(ctx, db, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    &actingRole,
			Action:       audit.ActionAdjudicationCompleted,
			EntityType:   audit.EntitySentence,
			EntityID:     &sentenceID,
			BeforeStatus: &before,
			AfterStatus:  &after,
			Metadata: map[string]any{
				"adjudication_id":       adjudication.ID,
				"decision_note":         req.DecisionNote,
				"source_annotation_ids": req.SourceAnnotationIDs,
			},
		})
		return err
	})
	if err != nil {
		return store.Adjudication{}, err
	}

	s.log.InfoContext(ctx, "sentence adjudicated",
		"sentence_id", sentenceID, "adjudication_id", adjudication.ID)

	return adjudication, nil
}

// Accept finalizes an adjudicated sentence, deactivating any straggler
// assignments.
func (s *Service) Accept(ctx context.Context, actor Actor,
	sentenceID int64) (store.Sentence, error) {

	var updated store.Sentence
	err := s.db.WithTx(ctx, func(ctx context.Context,
		db store.Storage) error {

		sentence, err := getSentence(ctx, db, sentenceID)
		if err != nil {
			return err
		}

		actingRole, err := RequireRoles(actor,
			[]amr.Role{amr.RoleAdmin, amr.RoleCurator}, true)
		if err != nil {
			return err
		}

		err = EnsureTransition(
			sentence.Status, amr.StatusAccepted, actingRole,
		)
		if err != nil {
			return err
		}

		active, err := db.ListActiveAssignmentsForSentence(
			ctx, sentenceID,
		)
		if err != nil {
			return err
		}
		for _, a := range active {
			if err := db.DeactivateAssignment(ctx, a.ID); err != nil {
				return err
			}
		}

		before := sentence.Status
		updated, err = db.UpdateSentenceStatus(
			ctx, sentenceID, amr.StatusAccepted,
		)
		if err != nil {
			return err
		}

		after := amr.StatusAccepted
		_, err = audit.Record(ctx, db, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    &actingRole,
			Action:       audit.ActionSentenceAccepted,
			EntityType:   audit.EntitySentence,
			EntityID:     &sentenceID,
			BeforeStatus: &before,
			AfterStatus:  &after,
		})
		return err
	})
	if err != nil {
		return store.Sentence{}, err
	}

	s.log.InfoContext(ctx, "sentence accepted", "sentence_id", sentenceID)

	return updated, nil
}

// Reopen sends an adjudicated sentence back to review.
func (s *Service) Reopen(ctx context.Context, actor Actor, sentenceID int64,
	reason string) (store.Sentence, error) {

	var updated store.Sentence
	err := s.db.WithTx(ctx, func(ctx context.Context,
		db store.Storage) error {

		sentence, err := getSentence(ctx, db, sentenceID)
		if err != nil {
			return err
		}

		actingRole, err := RequireRoles(actor,
			[]amr.Role{amr.RoleAdmin, amr.RoleCurator}, true)
		if err != nil {
			return err
		}

		if sentence.Status != amr.StatusAdjudicated {
			return amr.NewError(amr.CodeConflict,
				"Cümle adjudication aşamasında değil.")
		}
		err = EnsureTransition(
			sentence.Status, amr.StatusInReview, actingRole,
		)
		if err != nil {
			return err
		}

		before := sentence.Status
		updated, err = db.UpdateSentenceStatus(
			ctx, sentenceID, amr.StatusInReview,
		)
		if err != nil {
			return err
		}

		after := amr.StatusInReview
		_, err = audit.Record(ctx, db, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    &actingRole,
			Action:       audit.ActionAdjudicationReopened,
			EntityType:   audit.EntitySentence,
			EntityID:     &sentenceID,
			BeforeStatus: &before,
			AfterStatus:  &after,
			Metadata: map[string]any{
				"reason": reason,
			},
		})
		return err
	})
	if err != nil {
		return store.Sentence{}, err
	}

	s.log.InfoContext(ctx, "adjudication reopened",
		"sentence_id", sentenceID)

	return updated, nil
}

// recordValidationFailure persists the validation FailedSubmission stamped
// with the project's version triple and the submitted text.
func recordValidationFailure(ctx context.Context, db store.Storage,
	project store.Project, sentence store.Sentence,
	assignment store.Assignment, userID int64, penmanText string,
	report *validation.Report) error {

	reason := "AMR doğrulaması başarısız oldu."
	if len(report.Errors) > 0 {
		reason = report.Errors[0].Message
	}

	details := map[string]any{
		"errors":   issueCodes(report.Errors),
		"warnings": issueCodes(report.Warnings),
	}

	_, err := db.CreateFailedSubmission(ctx,
		store.CreateFailedSubmissionParams{
			ProjectID:       project.ID,
			SentenceID:      sentence.ID,
			AssignmentID:    &assignment.ID,
			UserID:          &userID,
			FailureType:     amr.FailureValidation,
			Reason:          reason,
			Details:         details,
			AmrVersion:      &project.AmrVersion,
			RoleSetVersion:  &project.RoleSetVersion,
			RuleVersion:     &project.ValidationRuleVersion,
			SubmittedPenman: &penmanText,
		})
	if err != nil {
		return fmt.Errorf("unable to record failed submission: %w", err)
	}
	return nil
}

// recordReviewReject persists the review_reject FailedSubmission for a
// rejected annotation.
func recordReviewReject(ctx context.Context, db store.Storage,
	sentence store.Sentence, annotation store.Annotation,
	reviewerID int64, comment *string) error {

	project, err := getProject(ctx, db, sentence.ProjectID)
	if err != nil {
		return err
	}

	reason := "Review reject"
	if comment != nil && *comment != "" {
		reason = *comment
	}

	_, err = db.CreateFailedSubmission(ctx,
		store.CreateFailedSubmissionParams{
			ProjectID:       project.ID,
			SentenceID:      sentence.ID,
			AssignmentID:    annotation.AssignmentID,
			AnnotationID:    &annotation.ID,
			UserID:          &annotation.AuthorID,
			ReviewerID:      &reviewerID,
			FailureType:     amr.FailureReviewReject,
			Reason:          reason,
			AmrVersion:      &project.AmrVersion,
			RoleSetVersion:  &project.RoleSetVersion,
			RuleVersion:     &project.ValidationRuleVersion,
			SubmittedPenman: &annotation.PenmanText,
		})
	if err != nil {
		return fmt.Errorf("unable to record failed submission: %w", err)
	}
	return nil
}

func issueCodes(issues []validation.Issue) []string {
	codes := make([]string, 0, len(issues))
	for _, issue := range issues {
		codes = append(codes, issue.Code)
	}
	return codes
}

func getProject(ctx context.Context, db store.Storage,
	projectID int64) (store.Project, error) {

	project, err := db.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Project{}, amr.NewError(amr.CodeNotFound,
				"Proje bulunamadı")
		}
		return store.Project{}, err
	}
	return project, nil
}

func getSentence(ctx context.Context, db store.Storage,
	sentenceID int64) (store.Sentence, error) {

	sentence, err := db.GetSentence(ctx, sentenceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Sentence{}, amr.NewError(amr.CodeNotFound,
				"Cümle bulunamadı")
		}
		return store.Sentence{}, err
	}
	return sentence, nil
}
