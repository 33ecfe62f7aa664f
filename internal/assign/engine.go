// Package assign implements the assignment engine, which selects annotators
// or reviewers for a sentence. Selection is deterministic: ties always break
// on ascending user ID, so identical inputs produce identical assignments.
package assign

import (
	"context"
	"sort"
	"strings"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/store"
)

// Request describes a single selection. ExcludeUserIDs removes users from
// consideration regardless of eligibility, e.g. the author of a rejected
// annotation on reassignment.
type Request struct {
	ProjectID         int64
	Strategy          amr.AssignmentStrategy
	Role              amr.Role
	Count             int
	RequiredSkills    []string
	ProvidedAssignees []int64
	ExcludeUserIDs    map[int64]struct{}
}

// SelectAssignees picks Count users for the request. Explicitly provided
// assignees bypass the strategy: they are filtered for eligibility, deduped
// in order, and truncated to Count. Otherwise the configured strategy ranks
// the project's eligible members.
func SelectAssignees(ctx context.Context, db store.Storage,
	req Request) ([]int64, error) {

	if req.Count < 1 {
		return nil, amr.NewError(amr.CodeInvalidCount,
			"En az bir atama yapılmalıdır.")
	}

	eligibleIDs, err := db.ListEligibleMembers(
		ctx, req.ProjectID, req.Role,
	)
	if err != nil {
		return nil, err
	}

	eligible := make(map[int64]struct{}, len(eligibleIDs))
	for _, id := range eligibleIDs {
		eligible[id] = struct{}{}
	}

	if len(req.ProvidedAssignees) > 0 {
		return selectProvided(req, eligible)
	}

	var assignees []int64
	switch req.Strategy {
	case amr.StrategyRoundRobin:
		assignees, err = roundRobin(ctx, db, req, eligibleIDs)

	case amr.StrategySkillBased:
		assignees, err = skillBased(ctx, db, req, eligibleIDs)

	default:
		return nil, amr.NewError(amr.CodeUnknownStrategy,
			"Geçersiz atama stratejisi.")
	}
	if err != nil {
		return nil, err
	}

	if len(assignees) == 0 {
		return nil, amr.NewError(amr.CodeNoEligibleCandidates,
			"Uygun anotatör bulunamadı.")
	}
	if len(assignees) < req.Count {
		return nil, amr.NewError(amr.CodeInsufficientCandidates,
			"Yeterli sayıda anotatör bulunamadı.")
	}

	return assignees, nil
}

// selectProvided filters an explicit assignee list down to eligible,
// non-excluded users, preserving the caller's order and dropping duplicates.
func selectProvided(req Request,
	eligible map[int64]struct{}) ([]int64, error) {

	seen := make(map[int64]struct{}, len(req.ProvidedAssignees))
	var assignees []int64
	for _, userID := range req.ProvidedAssignees {
		if _, ok := eligible[userID]; !ok {
			continue
		}
		if _, ok := req.ExcludeUserIDs[userID]; ok {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		assignees = append(assignees, userID)
	}

	if len(assignees) == 0 {
		return nil, amr.NewError(amr.CodeNoEligibleCandidates,
			"Geçerli bir hedef kullanıcı bulunamadı.")
	}
	if len(assignees) > req.Count {
		assignees = assignees[:req.Count]
	}

	return assignees, nil
}

// roundRobin ranks candidates by current active assignment load, breaking
// ties on ascending user ID, and takes the first Count.
func roundRobin(ctx context.Context, db store.Storage, req Request,
	eligibleIDs []int64) ([]int64, error) {

	load, err := db.CountActiveAssignments(ctx, req.ProjectID, req.Role)
	if err != nil {
		return nil, err
	}

	candidates := make([]int64, 0, len(eligibleIDs))
	for _, userID := range eligibleIDs {
		if _, ok := req.ExcludeUserIDs[userID]; ok {
			continue
		}
		candidates = append(candidates, userID)
	}

	sort.Slice(candidates, func(i, j int) bool {
		li, lj := load[candidates[i]], load[candidates[j]]
		if li != lj {
			return li < lj
		}
		return candidates[i] < candidates[j]
	})

	if len(candidates) > req.Count {
		candidates = candidates[:req.Count]
	}
	return candidates, nil
}

// skillBased ranks candidates by the size of the case-insensitive overlap
// between their profile skills and the required skills, breaking ties on
// load then user ID. With no required skills it degenerates to round robin;
// candidates without any overlap are dropped entirely.
func skillBased(ctx context.Context, db store.Storage, req Request,
	eligibleIDs []int64) ([]int64, error) {

	if len(req.RequiredSkills) == 0 {
		return roundRobin(ctx, db, req, eligibleIDs)
	}

	profiles, err := db.GetUserProfiles(ctx, eligibleIDs)
	if err != nil {
		return nil, err
	}

	required := make(map[string]struct{}, len(req.RequiredSkills))
	for _, skill := range req.RequiredSkills {
		required[strings.ToLower(skill)] = struct{}{}
	}

	load, err := db.CountActiveAssignments(ctx, req.ProjectID, req.Role)
	if err != nil {
		return nil, err
	}

	type scored struct {
		userID  int64
		overlap int
	}
	var candidates []scored
	for _, profile := range profiles {
		if !profile.IsActive {
			continue
		}
		if _, ok := req.ExcludeUserIDs[profile.UserID]; ok {
			continue
		}

		overlap := 0
		for _, skill := range profile.Skills {
			if _, ok := required[strings.ToLower(skill)]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			candidates = append(candidates, scored{
				userID:  profile.UserID,
				overlap: overlap,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		li, lj := load[candidates[i].userID], load[candidates[j].userID]
		if li != lj {
			return li < lj
		}
		return candidates[i].userID < candidates[j].userID
	})

	assignees := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		assignees = append(assignees, c.userID)
	}
	if len(assignees) > req.Count {
		assignees = assignees[:req.Count]
	}
	return assignees, nil
}
