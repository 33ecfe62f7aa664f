package store

import (
	"context"
	"testing"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/stretchr/testify/require"
)

// newTestProject seeds a project with a user per role and returns the
// project together with the seeded user IDs keyed by role.
func newTestProject(t *testing.T, db Storage) (Project, map[amr.Role]int64) {
	t.Helper()
	ctx := context.Background()

	project, err := db.CreateProject(ctx, CreateProjectParams{
		Name:                  "tr-amr-pilot",
		Language:              "tr",
		AmrVersion:            "1.0",
		RoleSetVersion:        "tr-propbank",
		ValidationRuleVersion: "v1",
		VersionTag:            "v1",
	})
	require.NoError(t, err)

	users := make(map[amr.Role]int64)
	for _, role := range []amr.Role{
		amr.RoleAdmin, amr.RoleAnnotator, amr.RoleReviewer,
		amr.RoleCurator,
	} {
		u, err := db.CreateUser(ctx, CreateUserParams{
			Username:       string(role) + "-1",
			HashedPassword: "x",
			Role:           role,
		})
		require.NoError(t, err)
		users[role] = u.ID

		mem, err := db.CreateMembership(ctx, CreateMembershipParams{
			UserID:    u.ID,
			ProjectID: project.ID,
			Role:      role,
		})
		require.NoError(t, err)
		require.False(t, mem.IsActive)

		_, err = db.ApproveMembership(ctx, mem.ID, time.Now().UTC())
		require.NoError(t, err)
	}

	return project, users
}

// TestMembershipEligibility asserts that only approved, active memberships
// count as eligible assignment targets.
func TestMembershipEligibility(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := NewMockStore()
	project, users := newTestProject(t, db)

	// A member that was added but never approved must not be eligible.
	pending, err := db.CreateUser(ctx, CreateUserParams{
		Username:       "annotator-pending",
		HashedPassword: "x",
		Role:           amr.RoleAnnotator,
	})
	require.NoError(t, err)

	_, err = db.CreateMembership(ctx, CreateMembershipParams{
		UserID:    pending.ID,
		ProjectID: project.ID,
		Role:      amr.RoleAnnotator,
	})
	require.NoError(t, err)

	eligible, err := db.ListEligibleMembers(
		ctx, project.ID, amr.RoleAnnotator,
	)
	require.NoError(t, err)
	require.Equal(t, []int64{users[amr.RoleAnnotator]}, eligible)

	counts, err := db.CountMembershipsByRole(ctx, project.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, counts[amr.RoleAnnotator])
	require.EqualValues(t, 1, counts[amr.RoleReviewer])
}

// TestAssignmentLoadCounting asserts that active assignment counts are scoped
// to a single project and role, and that deactivation removes load.
func TestAssignmentLoadCounting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := NewMockStore()
	project, users := newTestProject(t, db)
	annotator := users[amr.RoleAnnotator]

	s1, err := db.CreateSentence(ctx, CreateSentenceParams{
		ProjectID: project.ID, Text: "Çocuk parkta koşuyor.",
	})
	require.NoError(t, err)
	require.Equal(t, amr.StatusNew, s1.Status)

	s2, err := db.CreateSentence(ctx, CreateSentenceParams{
		ProjectID: project.ID, Text: "Kedi bahçede uyuyor.",
	})
	require.NoError(t, err)

	a1, err := db.CreateAssignment(ctx, CreateAssignmentParams{
		SentenceID: s1.ID, UserID: annotator, Role: amr.RoleAnnotator,
	})
	require.NoError(t, err)
	require.True(t, a1.IsActive)

	_, err = db.CreateAssignment(ctx, CreateAssignmentParams{
		SentenceID: s2.ID, UserID: annotator, Role: amr.RoleAnnotator,
	})
	require.NoError(t, err)

	// A reviewer assignment on the same sentence must not count toward
	// annotator load.
	_, err = db.CreateAssignment(ctx, CreateAssignmentParams{
		SentenceID: s1.ID, UserID: users[amr.RoleReviewer],
		Role: amr.RoleReviewer,
	})
	require.NoError(t, err)

	load, err := db.CountActiveAssignments(
		ctx, project.ID, amr.RoleAnnotator,
	)
	require.NoError(t, err)
	require.EqualValues(t, 2, load[annotator])

	require.NoError(t, db.DeactivateAssignment(ctx, a1.ID))

	load, err = db.CountActiveAssignments(
		ctx, project.ID, amr.RoleAnnotator,
	)
	require.NoError(t, err)
	require.EqualValues(t, 1, load[annotator])

	_, err = db.GetActiveAssignmentForUser(ctx, s1.ID, annotator)
	require.ErrorIs(t, err, ErrNotFound)
}

// TestRejectReviewLookup asserts that HasRejectReview finds reject decisions
// through the sentence's annotations.
func TestRejectReviewLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := NewMockStore()
	project, users := newTestProject(t, db)

	sentence, err := db.CreateSentence(ctx, CreateSentenceParams{
		ProjectID: project.ID, Text: "Adam kitap okuyor.",
	})
	require.NoError(t, err)

	annotation, err := db.CreateAnnotation(ctx, CreateAnnotationParams{
		SentenceID: sentence.ID,
		AuthorID:   users[amr.RoleAnnotator],
		PenmanText: "(o / oku-01)",
	})
	require.NoError(t, err)

	rejected, err := db.HasRejectReview(ctx, sentence.ID)
	require.NoError(t, err)
	require.False(t, rejected)

	_, err = db.CreateReview(ctx, CreateReviewParams{
		AnnotationID: annotation.ID,
		ReviewerID:   users[amr.RoleReviewer],
		Decision:     amr.DecisionReject,
	})
	require.NoError(t, err)

	rejected, err = db.HasRejectReview(ctx, sentence.ID)
	require.NoError(t, err)
	require.True(t, rejected)
}

// TestAdjudicationLatestWins asserts that the most recent adjudication is
// returned when a sentence was adjudicated more than once.
func TestAdjudicationLatestWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := NewMockStore()
	project, users := newTestProject(t, db)

	sentence, err := db.CreateSentence(ctx, CreateSentenceParams{
		ProjectID: project.ID, Text: "Kuş ağaçta ötüyor.",
	})
	require.NoError(t, err)

	_, err = db.GetAdjudicationForSentence(ctx, sentence.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = db.CreateAdjudication(ctx, CreateAdjudicationParams{
		SentenceID:  sentence.ID,
		CuratorID:   users[amr.RoleCurator],
		FinalPenman: "(o / öt-01)",
	})
	require.NoError(t, err)

	second, err := db.CreateAdjudication(ctx, CreateAdjudicationParams{
		SentenceID:  sentence.ID,
		CuratorID:   users[amr.RoleCurator],
		FinalPenman: "(o / öt-01 :ARG0 (k / kuş))",
	})
	require.NoError(t, err)

	latest, err := db.GetAdjudicationForSentence(ctx, sentence.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)
	require.Equal(t, second.FinalPenman, latest.FinalPenman)
}

// TestExportJobQueue asserts FIFO dequeue order and status updates.
func TestExportJobQueue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := NewMockStore()
	project, users := newTestProject(t, db)
	admin := users[amr.RoleAdmin]

	_, err := db.NextQueuedExportJob(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	first, err := db.CreateExportJob(ctx, CreateExportJobParams{
		ProjectID:   project.ID,
		CreatedBy:   admin,
		Format:      amr.FormatJSON,
		Level:       amr.LevelGold,
		PiiStrategy: amr.PiiAnonymize,
	})
	require.NoError(t, err)
	require.Equal(t, amr.JobQueued, first.Status)

	second, err := db.CreateExportJob(ctx, CreateExportJobParams{
		ProjectID:   project.ID,
		CreatedBy:   admin,
		Format:      amr.FormatJSON,
		Level:       amr.LevelAll,
		PiiStrategy: amr.PiiStrip,
	})
	require.NoError(t, err)

	next, err := db.NextQueuedExportJob(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, next.ID)

	resultPath := "/tmp/out.json"
	updated, err := db.UpdateExportJobStatus(ctx,
		UpdateExportJobStatusParams{
			ID:         first.ID,
			Status:     amr.JobCompleted,
			ResultPath: &resultPath,
		})
	require.NoError(t, err)
	require.Equal(t, amr.JobCompleted, updated.Status)
	require.NotNil(t, updated.ResultPath)
	require.Equal(t, resultPath, *updated.ResultPath)

	next, err = db.NextQueuedExportJob(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, next.ID)
}

// TestAuditLogFilter asserts the audit listing filters and paginates.
func TestAuditLogFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := NewMockStore()
	_, users := newTestProject(t, db)
	admin := users[amr.RoleAdmin]
	annotator := users[amr.RoleAnnotator]

	sentenceType := "sentence"
	for i, action := range []string{
		"sentence_created", "sentence_assigned", "annotation_submitted",
	} {
		actor := admin
		if i == 2 {
			actor = annotator
		}
		_, err := db.CreateAuditLog(ctx, CreateAuditLogParams{
			ActorID:    &actor,
			Action:     action,
			EntityType: sentenceType,
		})
		require.NoError(t, err)
	}

	logs, err := db.ListAuditLogs(ctx, AuditLogFilter{ActorID: &admin})
	require.NoError(t, err)
	require.Len(t, logs, 2)

	action := "annotation_submitted"
	logs, err = db.ListAuditLogs(ctx, AuditLogFilter{Action: &action})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, annotator, *logs[0].ActorID)

	logs, err = db.ListAuditLogs(ctx, AuditLogFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, logs, 2)

	logs, err = db.ListAuditLogs(ctx, AuditLogFilter{Offset: 2})
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

// TestProfileUpsert asserts that repeated profile writes replace the skill
// set in place.
func TestProfileUpsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := NewMockStore()
	_, users := newTestProject(t, db)
	annotator := users[amr.RoleAnnotator]

	p1, err := db.UpsertUserProfile(ctx, UpsertUserProfileParams{
		UserID:   annotator,
		Skills:   []string{"negation", "modality"},
		IsActive: true,
	})
	require.NoError(t, err)

	p2, err := db.UpsertUserProfile(ctx, UpsertUserProfileParams{
		UserID:   annotator,
		Skills:   []string{"coreference"},
		IsActive: true,
	})
	require.NoError(t, err)
	require.Equal(t, p1.ID, p2.ID)
	require.Equal(t, []string{"coreference"}, p2.Skills)

	profiles, err := db.GetUserProfiles(ctx, []int64{annotator, 9999})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	require.Equal(t, []string{"coreference"}, profiles[0].Skills)
}
