package workflow

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/store"
	"github.com/stretchr/testify/require"
)

const validPenman = "(b / buy-01 :ARG0 (p / person))"

// testHarness bundles a mock-backed workflow service with the seeded actors
// of a single project.
type testHarness struct {
	db      *store.MockStore
	svc     *Service
	project store.Project

	admin      Actor
	annotator  Actor
	annotator2 Actor
	reviewer   Actor
	curator    Actor
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	ctx := context.Background()

	db := store.NewMockStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	project, err := db.CreateProject(ctx, store.CreateProjectParams{
		Name:                  "tr-amr-pilot",
		Language:              "tr",
		AmrVersion:            "1.0",
		RoleSetVersion:        "tr-propbank",
		ValidationRuleVersion: "v1",
		VersionTag:            "v1",
	})
	require.NoError(t, err)

	h := &testHarness{
		db:      db,
		svc:     NewService(db, log),
		project: project,
	}

	mkActor := func(name string, role amr.Role) Actor {
		u, err := db.CreateUser(ctx, store.CreateUserParams{
			Username:       name,
			HashedPassword: "x",
			Role:           role,
		})
		require.NoError(t, err)

		mem, err := db.CreateMembership(ctx, store.CreateMembershipParams{
			UserID:    u.ID,
			ProjectID: project.ID,
			Role:      role,
		})
		require.NoError(t, err)

		_, err = db.ApproveMembership(ctx, mem.ID, time.Now().UTC())
		require.NoError(t, err)

		projectRole := role
		return Actor{
			UserID:      u.ID,
			Role:        role,
			ProjectRole: &projectRole,
		}
	}

	h.admin = mkActor("admin", amr.RoleAdmin)
	h.annotator = mkActor("annotator-1", amr.RoleAnnotator)
	h.annotator2 = mkActor("annotator-2", amr.RoleAnnotator)
	h.reviewer = mkActor("reviewer", amr.RoleReviewer)
	h.curator = mkActor("curator", amr.RoleCurator)

	return h
}

// newAssignedSentence ingests a sentence and assigns it to the given
// annotators.
func (h *testHarness) newAssignedSentence(t *testing.T,
	assignees ...Actor) store.Sentence {

	t.Helper()
	ctx := context.Background()

	sentence, err := h.svc.CreateSentence(ctx, h.admin, h.project.ID,
		CreateSentenceRequest{Text: "Adam kitap aldı."})
	require.NoError(t, err)

	ids := make([]int64, 0, len(assignees))
	for _, a := range assignees {
		ids = append(ids, a.UserID)
	}
	_, err = h.svc.Assign(ctx, h.admin, sentence.ID, AssignRequest{
		Strategy:          amr.StrategyRoundRobin,
		Role:              amr.RoleAnnotator,
		Count:             len(ids),
		ProvidedAssignees: ids,
	})
	require.NoError(t, err)

	return sentence
}

// TestHappyPath drives a sentence from ingestion to acceptance and checks
// the audit trail reconstructs the full status history.
func TestHappyPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t)
	sentence := h.newAssignedSentence(t, h.annotator)

	result, err := h.svc.Submit(
		ctx, h.annotator, sentence.ID, validPenman,
	)
	require.NoError(t, err)
	require.NotNil(t, result.Report)
	require.True(t, result.Report.IsValid)
	require.Equal(t, validPenman, result.Annotation.PenmanText)

	got, err := h.db.GetSentence(ctx, sentence.ID)
	require.NoError(t, err)
	require.Equal(t, amr.StatusSubmitted, got.Status)

	got, err = h.svc.Review(ctx, h.reviewer, sentence.ID, ReviewRequest{
		AnnotationID: result.Annotation.ID,
		Decision:     amr.DecisionApprove,
	})
	require.NoError(t, err)
	require.Equal(t, amr.StatusAdjudicated, got.Status)

	got, err = h.svc.Accept(ctx, h.curator, sentence.ID)
	require.NoError(t, err)
	require.Equal(t, amr.StatusAccepted, got.Status)

	logs, err := h.db.ListAuditLogs(ctx, store.AuditLogFilter{})
	require.NoError(t, err)
	require.Len(t, logs, 5)

	type pair struct{ before, after string }
	want := []pair{
		{"", "NEW"},
		{"NEW", "ASSIGNED"},
		{"ASSIGNED", "SUBMITTED"},
		{"SUBMITTED", "ADJUDICATED"},
		{"ADJUDICATED", "ACCEPTED"},
	}
	for i, entry := range logs {
		var got pair
		if entry.BeforeStatus != nil {
			got.before = *entry.BeforeStatus
		}
		if entry.AfterStatus != nil {
			got.after = *entry.AfterStatus
		}
		require.Equal(t, want[i], got, "entry %d", i)
	}
	require.Equal(t, "ACCEPTED", *logs[len(logs)-1].AfterStatus)
}

// TestInvalidSubmission asserts that a failed validation leaves the sentence
// untouched but durably records the failed submission.
func TestInvalidSubmission(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t)
	sentence := h.newAssignedSentence(t, h.annotator)

	badPenman := "(b / boy :ARG0 (b / bark-01) :ARG1 x)"
	result, err := h.svc.Submit(ctx, h.annotator, sentence.ID, badPenman)
	require.True(t, amr.IsCode(err, amr.CodeValidationFailed))
	require.NotNil(t, result.Report)
	require.True(t, result.Report.HasErrorCode("conflicting_instances"))
	require.True(t, result.Report.HasErrorCode("dangling_variable"))

	got, err := h.db.GetSentence(ctx, sentence.ID)
	require.NoError(t, err)
	require.Equal(t, amr.StatusAssigned, got.Status)

	failures, err := h.db.ListFailedSubmissions(ctx, h.project.ID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	require.Equal(t, amr.FailureValidation, failures[0].FailureType)
	require.Equal(t, badPenman, *failures[0].SubmittedPenman)
	require.Equal(t, "v1", *failures[0].RuleVersion)
	require.Equal(t, h.annotator.UserID, *failures[0].UserID)
}

// TestRejectThenReassign asserts the reject flow deactivates the assignment,
// records the failure, and gates reassignment on a prior reject.
func TestRejectThenReassign(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t)
	sentence := h.newAssignedSentence(t, h.annotator)

	result, err := h.svc.Submit(
		ctx, h.annotator, sentence.ID, validPenman,
	)
	require.NoError(t, err)

	comment := "low quality"
	got, err := h.svc.Review(ctx, h.reviewer, sentence.ID, ReviewRequest{
		AnnotationID: result.Annotation.ID,
		Decision:     amr.DecisionReject,
		Comment:      &comment,
	})
	require.NoError(t, err)
	require.Equal(t, amr.StatusAssigned, got.Status)

	active, err := h.db.ListActiveAssignmentsForSentence(ctx, sentence.ID)
	require.NoError(t, err)
	require.Empty(t, active)

	failures, err := h.db.ListFailedSubmissions(ctx, h.project.ID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	require.Equal(t, amr.FailureReviewReject, failures[0].FailureType)
	require.Equal(t, comment, failures[0].Reason)
	require.Equal(t, result.Annotation.ID, *failures[0].AnnotationID)
	require.Equal(t, h.reviewer.UserID, *failures[0].ReviewerID)

	assignments, err := h.svc.Assign(ctx, h.admin, sentence.ID,
		AssignRequest{
			Strategy:            amr.StrategyRoundRobin,
			Role:                amr.RoleAnnotator,
			Count:               1,
			ProvidedAssignees:   []int64{h.annotator2.UserID},
			ReassignAfterReject: true,
		})
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.Equal(t, h.annotator2.UserID, assignments[0].UserID)

	// Reassignment without a prior reject must be blocked.
	fresh := h.newAssignedSentence(t, h.annotator)
	_, err = h.svc.Assign(ctx, h.admin, fresh.ID, AssignRequest{
		Strategy:            amr.StrategyRoundRobin,
		Role:                amr.RoleAnnotator,
		Count:               1,
		ProvidedAssignees:   []int64{h.annotator2.UserID},
		ReassignAfterReject: true,
	})
	require.True(t, amr.IsCode(err, amr.CodeReassignRequiresRejection))
}

// TestMultiAnnotatorHold asserts that an approval with the multi-annotator
// flag parks the sentence in review until the final approval.
func TestMultiAnnotatorHold(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t)
	sentence := h.newAssignedSentence(t, h.annotator, h.annotator2)

	result, err := h.svc.Submit(
		ctx, h.annotator, sentence.ID, validPenman,
	)
	require.NoError(t, err)

	got, err := h.svc.Review(ctx, h.reviewer, sentence.ID, ReviewRequest{
		AnnotationID:     result.Annotation.ID,
		Decision:         amr.DecisionApprove,
		IsMultiAnnotator: true,
	})
	require.NoError(t, err)
	require.Equal(t, amr.StatusInReview, got.Status)

	got, err = h.svc.Review(ctx, h.reviewer, sentence.ID, ReviewRequest{
		AnnotationID: result.Annotation.ID,
		Decision:     amr.DecisionApprove,
	})
	require.NoError(t, err)
	require.Equal(t, amr.StatusAdjudicated, got.Status)
}

// TestReviewGuardsSelfLoop asserts that the multi-annotator hold is still a
// guarded transition: an annotator cannot park a sentence in review, and no
// review of any kind lands on an adjudicated sentence.
func TestReviewGuardsSelfLoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t)
	sentence := h.newAssignedSentence(t, h.annotator, h.annotator2)

	result, err := h.svc.Submit(
		ctx, h.annotator, sentence.ID, validPenman,
	)
	require.NoError(t, err)

	_, err = h.svc.Review(ctx, h.reviewer, sentence.ID, ReviewRequest{
		AnnotationID:     result.Annotation.ID,
		Decision:         amr.DecisionApprove,
		IsMultiAnnotator: true,
	})
	require.NoError(t, err)

	// The IN_REVIEW hold is reserved for reviewer-tier roles.
	_, err = h.svc.Review(ctx, h.annotator2, sentence.ID, ReviewRequest{
		AnnotationID:     result.Annotation.ID,
		Decision:         amr.DecisionApprove,
		IsMultiAnnotator: true,
	})
	require.True(t, amr.IsCode(err, amr.CodeTransitionForbidden))

	_, err = h.svc.Review(ctx, h.reviewer, sentence.ID, ReviewRequest{
		AnnotationID: result.Annotation.ID,
		Decision:     amr.DecisionApprove,
	})
	require.NoError(t, err)

	got, err := h.db.GetSentence(ctx, sentence.ID)
	require.NoError(t, err)
	require.Equal(t, amr.StatusAdjudicated, got.Status)

	// Adjudicated sentences take no further reviews; re-adjudication
	// goes through reopen.
	_, err = h.svc.Review(ctx, h.reviewer, sentence.ID, ReviewRequest{
		AnnotationID: result.Annotation.ID,
		Decision:     amr.DecisionApprove,
	})
	require.True(t, amr.IsCode(err, amr.CodeTransitionNotDefined))

	_, err = h.svc.Review(ctx, h.reviewer, sentence.ID, ReviewRequest{
		AnnotationID: result.Annotation.ID,
		Decision:     amr.DecisionNeedsFix,
	})
	require.True(t, amr.IsCode(err, amr.CodeTransitionNotDefined))
}

// TestSubmitRequiresAssignment asserts that only assigned annotators can
// submit.
func TestSubmitRequiresAssignment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t)
	sentence := h.newAssignedSentence(t, h.annotator)

	_, err := h.svc.Submit(ctx, h.annotator2, sentence.ID, validPenman)
	require.True(t, amr.IsCode(err, amr.CodeTransitionForbidden))
}

// TestAdjudicateLifecycle drives adjudicate, accept gating and reopen.
func TestAdjudicateLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t)
	sentence := h.newAssignedSentence(t, h.annotator)

	result, err := h.svc.Submit(
		ctx, h.annotator, sentence.ID, validPenman,
	)
	require.NoError(t, err)

	// Adjudication is only possible once the sentence is in review.
	_, err = h.svc.Adjudicate(ctx, h.curator, sentence.ID,
		AdjudicateRequest{FinalPenman: validPenman})
	require.True(t, amr.IsCode(err, amr.CodeConflict))

	_, err = h.svc.Review(ctx, h.reviewer, sentence.ID, ReviewRequest{
		AnnotationID:     result.Annotation.ID,
		Decision:         amr.DecisionApprove,
		IsMultiAnnotator: true,
	})
	require.NoError(t, err)

	note := "merged both variants"
	adjudication, err := h.svc.Adjudicate(ctx, h.curator, sentence.ID,
		AdjudicateRequest{
			FinalPenman:         validPenman,
			DecisionNote:        &note,
			SourceAnnotationIDs: []int64{result.Annotation.ID},
		})
	require.NoError(t, err)
	require.Equal(t, h.curator.UserID, adjudication.CuratorID)

	got, err := h.db.GetSentence(ctx, sentence.ID)
	require.NoError(t, err)
	require.Equal(t, amr.StatusAdjudicated, got.Status)

	// Reopen sends the sentence back to review, then a fresh
	// adjudication can accept it.
	got, err = h.svc.Reopen(ctx, h.curator, sentence.ID, "second look")
	require.NoError(t, err)
	require.Equal(t, amr.StatusInReview, got.Status)

	_, err = h.svc.Adjudicate(ctx, h.curator, sentence.ID,
		AdjudicateRequest{FinalPenman: validPenman})
	require.NoError(t, err)

	got, err = h.svc.Accept(ctx, h.curator, sentence.ID)
	require.NoError(t, err)
	require.Equal(t, amr.StatusAccepted, got.Status)

	// Annotators cannot adjudicate or accept.
	_, err = h.svc.Reopen(ctx, h.annotator, sentence.ID, "no")
	require.True(t, amr.IsCode(err, amr.CodeTransitionForbidden))
}

// TestAssignBlocksBusySentence asserts the assignment pre-conditions.
func TestAssignBlocksBusySentence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t)
	sentence := h.newAssignedSentence(t, h.annotator)

	// A second assignment without an allowance is a conflict.
	_, err := h.svc.Assign(ctx, h.admin, sentence.ID, AssignRequest{
		Strategy:          amr.StrategyRoundRobin,
		Role:              amr.RoleAnnotator,
		Count:             1,
		ProvidedAssignees: []int64{h.annotator2.UserID},
	})
	require.True(t, amr.IsCode(err, amr.CodeAssignmentNotAllowed))

	// With AllowMultiple a second annotator joins.
	assignments, err := h.svc.Assign(ctx, h.admin, sentence.ID,
		AssignRequest{
			Strategy:          amr.StrategyRoundRobin,
			Role:              amr.RoleAnnotator,
			Count:             1,
			ProvidedAssignees: []int64{h.annotator2.UserID},
			AllowMultiple:     true,
		})
	require.NoError(t, err)
	require.Len(t, assignments, 1)

	// Past ASSIGNED no new assignment is possible at all.
	_, err = h.svc.Submit(ctx, h.annotator, sentence.ID, validPenman)
	require.NoError(t, err)

	_, err = h.svc.Assign(ctx, h.admin, sentence.ID, AssignRequest{
		Strategy:      amr.StrategyRoundRobin,
		Role:          amr.RoleAnnotator,
		Count:         1,
		AllowMultiple: true,
	})
	require.True(t, amr.IsCode(err, amr.CodeAssignmentNotAllowed))
}
