package assign

import (
	"context"
	"testing"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/store"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// seedAnnotators creates a project with n approved annotator members and
// returns the project plus the member user IDs in creation order.
func seedAnnotators(t *testing.T, db store.Storage,
	n int) (store.Project, []int64) {

	t.Helper()
	ctx := context.Background()

	project, err := db.CreateProject(ctx, store.CreateProjectParams{
		Name:                  "tr-amr-pilot",
		Language:              "tr",
		AmrVersion:            "1.0",
		RoleSetVersion:        "tr-propbank",
		ValidationRuleVersion: "v1",
		VersionTag:            "v1",
	})
	require.NoError(t, err)

	userIDs := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		u, err := db.CreateUser(ctx, store.CreateUserParams{
			Username:       "annotator-" + string(rune('a'+i)),
			HashedPassword: "x",
			Role:           amr.RoleAnnotator,
		})
		require.NoError(t, err)
		userIDs = append(userIDs, u.ID)

		mem, err := db.CreateMembership(ctx, store.CreateMembershipParams{
			UserID:    u.ID,
			ProjectID: project.ID,
			Role:      amr.RoleAnnotator,
		})
		require.NoError(t, err)

		_, err = db.ApproveMembership(ctx, mem.ID, time.Now().UTC())
		require.NoError(t, err)
	}

	return project, userIDs
}

// addLoad gives userID extra active assignments in the project.
func addLoad(t *testing.T, db store.Storage, projectID, userID int64,
	n int) {

	t.Helper()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		s, err := db.CreateSentence(ctx, store.CreateSentenceParams{
			ProjectID: projectID,
			Text:      "Yük cümlesi.",
		})
		require.NoError(t, err)

		_, err = db.CreateAssignment(ctx, store.CreateAssignmentParams{
			SentenceID: s.ID,
			UserID:     userID,
			Role:       amr.RoleAnnotator,
		})
		require.NoError(t, err)
	}
}

func TestSelectRejectsInvalidCount(t *testing.T) {
	t.Parallel()

	db := store.NewMockStore()
	project, _ := seedAnnotators(t, db, 1)

	_, err := SelectAssignees(context.Background(), db, Request{
		ProjectID: project.ID,
		Strategy:  amr.StrategyRoundRobin,
		Role:      amr.RoleAnnotator,
		Count:     0,
	})
	require.True(t, amr.IsCode(err, amr.CodeInvalidCount))
}

func TestSelectRejectsUnknownStrategy(t *testing.T) {
	t.Parallel()

	db := store.NewMockStore()
	project, _ := seedAnnotators(t, db, 1)

	_, err := SelectAssignees(context.Background(), db, Request{
		ProjectID: project.ID,
		Strategy:  amr.AssignmentStrategy("random"),
		Role:      amr.RoleAnnotator,
		Count:     1,
	})
	require.True(t, amr.IsCode(err, amr.CodeUnknownStrategy))
}

// TestProvidedAssignees asserts that an explicit list preserves order,
// drops duplicates and ineligible users, and truncates to the count.
func TestProvidedAssignees(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := store.NewMockStore()
	project, users := seedAnnotators(t, db, 3)

	got, err := SelectAssignees(ctx, db, Request{
		ProjectID: project.ID,
		Strategy:  amr.StrategyRoundRobin,
		Role:      amr.RoleAnnotator,
		Count:     2,
		ProvidedAssignees: []int64{
			users[2], 9999, users[2], users[0], users[1],
		},
	})
	require.NoError(t, err)
	require.Equal(t, []int64{users[2], users[0]}, got)

	// Excluded users are filtered even when explicitly provided.
	got, err = SelectAssignees(ctx, db, Request{
		ProjectID:         project.ID,
		Strategy:          amr.StrategyRoundRobin,
		Role:              amr.RoleAnnotator,
		Count:             2,
		ProvidedAssignees: []int64{users[2], users[0]},
		ExcludeUserIDs:    map[int64]struct{}{users[2]: {}},
	})
	require.NoError(t, err)
	require.Equal(t, []int64{users[0]}, got)

	// An all-ineligible list is an error rather than a silent fallback.
	_, err = SelectAssignees(ctx, db, Request{
		ProjectID:         project.ID,
		Strategy:          amr.StrategyRoundRobin,
		Role:              amr.RoleAnnotator,
		Count:             1,
		ProvidedAssignees: []int64{9998, 9999},
	})
	require.True(t, amr.IsCode(err, amr.CodeNoEligibleCandidates))
}

// TestRoundRobinBalancesLoad asserts that the least-loaded members are
// picked first and ties break on ascending user ID.
func TestRoundRobinBalancesLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := store.NewMockStore()
	project, users := seedAnnotators(t, db, 3)

	addLoad(t, db, project.ID, users[0], 2)
	addLoad(t, db, project.ID, users[1], 1)

	got, err := SelectAssignees(ctx, db, Request{
		ProjectID: project.ID,
		Strategy:  amr.StrategyRoundRobin,
		Role:      amr.RoleAnnotator,
		Count:     2,
	})
	require.NoError(t, err)
	require.Equal(t, []int64{users[2], users[1]}, got)
}

func TestRoundRobinCandidateShortfalls(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := store.NewMockStore()
	project, users := seedAnnotators(t, db, 2)

	_, err := SelectAssignees(ctx, db, Request{
		ProjectID: project.ID,
		Strategy:  amr.StrategyRoundRobin,
		Role:      amr.RoleAnnotator,
		Count:     3,
	})
	require.True(t, amr.IsCode(err, amr.CodeInsufficientCandidates))

	_, err = SelectAssignees(ctx, db, Request{
		ProjectID: project.ID,
		Strategy:  amr.StrategyRoundRobin,
		Role:      amr.RoleAnnotator,
		Count:     1,
		ExcludeUserIDs: map[int64]struct{}{
			users[0]: {}, users[1]: {},
		},
	})
	require.True(t, amr.IsCode(err, amr.CodeNoEligibleCandidates))
}

// TestSkillBasedRanking asserts overlap-first ordering with load and user ID
// as tie breakers, case-insensitive skill matching, and the fallback to
// round robin when no skills are required.
func TestSkillBasedRanking(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := store.NewMockStore()
	project, users := seedAnnotators(t, db, 3)

	for i, skills := range [][]string{
		{"Negation"},
		{"negation", "modality"},
		{"coreference"},
	} {
		_, err := db.UpsertUserProfile(ctx, store.UpsertUserProfileParams{
			UserID:   users[i],
			Skills:   skills,
			IsActive: true,
		})
		require.NoError(t, err)
	}

	got, err := SelectAssignees(ctx, db, Request{
		ProjectID:      project.ID,
		Strategy:       amr.StrategySkillBased,
		Role:           amr.RoleAnnotator,
		Count:          2,
		RequiredSkills: []string{"NEGATION", "modality"},
	})
	require.NoError(t, err)
	require.Equal(t, []int64{users[1], users[0]}, got)

	// No overlapping profile at all means no candidates.
	_, err = SelectAssignees(ctx, db, Request{
		ProjectID:      project.ID,
		Strategy:       amr.StrategySkillBased,
		Role:           amr.RoleAnnotator,
		Count:          1,
		RequiredSkills: []string{"ellipsis"},
	})
	require.True(t, amr.IsCode(err, amr.CodeNoEligibleCandidates))

	// Without required skills the strategy degenerates to round robin.
	got, err = SelectAssignees(ctx, db, Request{
		ProjectID: project.ID,
		Strategy:  amr.StrategySkillBased,
		Role:      amr.RoleAnnotator,
		Count:     3,
	})
	require.NoError(t, err)
	require.Equal(t, []int64{users[0], users[1], users[2]}, got)
}

// TestRoundRobinDeterministic asserts with random load shapes that round
// robin always returns the candidates with minimal (load, user ID), and that
// repeated selections with identical state agree.
func TestRoundRobinDeterministic(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		db := store.NewMockStore()

		n := rapid.IntRange(1, 6).Draw(rt, "members")
		project, users := seedAnnotators(t, db, n)

		loads := make(map[int64]int, n)
		for _, userID := range users {
			load := rapid.IntRange(0, 4).Draw(rt, "load")
			loads[userID] = load
			addLoad(t, db, project.ID, userID, load)
		}

		count := rapid.IntRange(1, n).Draw(rt, "count")
		req := Request{
			ProjectID: project.ID,
			Strategy:  amr.StrategyRoundRobin,
			Role:      amr.RoleAnnotator,
			Count:     count,
		}

		got, err := SelectAssignees(ctx, db, req)
		if err != nil {
			rt.Fatalf("select failed: %v", err)
		}
		if len(got) != count {
			rt.Fatalf("expected %d assignees, got %d", count,
				len(got))
		}

		// Every selected user must carry load no greater than every
		// unselected one; equal loads must resolve to the lower ID.
		selected := make(map[int64]struct{}, len(got))
		for _, userID := range got {
			selected[userID] = struct{}{}
		}
		for _, sel := range got {
			for _, userID := range users {
				if _, ok := selected[userID]; ok {
					continue
				}
				if loads[sel] > loads[userID] {
					rt.Fatalf("selected %d (load %d) over "+
						"%d (load %d)", sel, loads[sel],
						userID, loads[userID])
				}
				if loads[sel] == loads[userID] &&
					sel > userID {

					rt.Fatalf("tie broken toward higher "+
						"id %d over %d", sel, userID)
				}
			}
		}

		again, err := SelectAssignees(ctx, db, req)
		if err != nil {
			rt.Fatalf("repeat select failed: %v", err)
		}
		for i := range got {
			if got[i] != again[i] {
				rt.Fatalf("selection not deterministic: "+
					"%v vs %v", got, again)
			}
		}
	})
}
