package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/audit"
	"github.com/amrlab/amrflow/internal/store"
	"github.com/amrlab/amrflow/internal/workflow"
)

type projectCreateRequest struct {
	Name                  string  `json:"name"`
	Language              string  `json:"language"`
	AmrVersion            string  `json:"amr_version"`
	RoleSetVersion        string  `json:"role_set_version"`
	ValidationRuleVersion string  `json:"validation_rule_version"`
	VersionTag            string  `json:"version_tag"`
	Description           *string `json:"description"`
}

// handleCreateProject creates a project. Admin only; project names are
// unique.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if id.Role != amr.RoleAdmin {
		s.writeError(w, r, amr.NewError(amr.CodeTransitionForbidden,
			"Yalnızca admin kullanıcılar erişebilir"))
		return
	}

	var req projectCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Name == "" || req.Language == "" {
		s.writeError(w, r, amr.NewError(amr.CodeBadRequest,
			"Proje adı ve dili zorunludur"))
		return
	}

	var project store.Project
	err = s.db.WithTx(r.Context(), func(ctx context.Context,
		db store.Storage) error {

		existing, err := db.ListProjects(ctx)
		if err != nil {
			return err
		}
		for _, p := range existing {
			if p.Name == req.Name {
				return amr.NewError(amr.CodeConflict,
					"Proje adı kullanılıyor")
			}
		}

		project, err = db.CreateProject(ctx, store.CreateProjectParams{
			Name:                  req.Name,
			Language:              req.Language,
			AmrVersion:            req.AmrVersion,
			RoleSetVersion:        req.RoleSetVersion,
			ValidationRuleVersion: req.ValidationRuleVersion,
			VersionTag:            req.VersionTag,
			Description:           req.Description,
		})
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.log.InfoContext(r.Context(), "project created",
		"project_id", project.ID, "name", project.Name)
	writeJSON(w, http.StatusCreated, newProjectPublic(project))
}

// handleListProjects lists all projects. Any authenticated user can browse.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		s.writeError(w, r, err)
		return
	}

	projects, err := s.db.ListProjects(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]projectPublic, 0, len(projects))
	for _, p := range projects {
		out = append(out, newProjectPublic(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleProjectSummary returns per-status sentence counts and per-role
// member counts. Admins and project curators only.
func (s *Server) handleProjectSummary(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	projectID, err := pathID(r, "project_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	summary := projectSummary{
		ProjectID:     projectID,
		Statuses:      make(map[string]int64),
		MembersByRole: make(map[string]int64),
	}
	for _, status := range amr.AllSentenceStatuses {
		summary.Statuses[string(status)] = 0
	}

	err = s.db.WithReadTx(r.Context(), func(ctx context.Context,
		db store.Storage) error {

		if _, err := db.GetProject(ctx, projectID); err != nil {
			return amr.NewError(amr.CodeNotFound, "Proje bulunamadı")
		}

		actor, err := s.projectActor(ctx, id, projectID)
		if err != nil {
			return err
		}
		_, err = workflow.RequireRoles(actor,
			[]amr.Role{amr.RoleAdmin, amr.RoleCurator}, true)
		if err != nil {
			return err
		}

		statusCounts, err := db.CountSentencesByStatus(ctx, projectID)
		if err != nil {
			return err
		}
		for status, count := range statusCounts {
			summary.Statuses[string(status)] = count
			summary.TotalSentences += count
		}

		roleCounts, err := db.CountMembershipsByRole(ctx, projectID)
		if err != nil {
			return err
		}
		for role, count := range roleCounts {
			summary.MembersByRole[string(role)] = count
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleListMembers lists a project's memberships. Admins and project
// curators only.
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	projectID, err := pathID(r, "project_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var memberships []store.ProjectMembership
	err = s.db.WithReadTx(r.Context(), func(ctx context.Context,
		db store.Storage) error {

		if _, err := db.GetProject(ctx, projectID); err != nil {
			return amr.NewError(amr.CodeNotFound, "Proje bulunamadı")
		}

		actor, err := s.projectActor(ctx, id, projectID)
		if err != nil {
			return err
		}
		_, err = workflow.RequireRoles(actor,
			[]amr.Role{amr.RoleAdmin, amr.RoleCurator}, true)
		if err != nil {
			return err
		}

		memberships, err = db.ListMemberships(ctx, projectID)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]membershipPublic, 0, len(memberships))
	for _, m := range memberships {
		out = append(out, newMembershipPublic(m))
	}
	writeJSON(w, http.StatusOK, out)
}

type membershipRequest struct {
	UserID int64    `json:"user_id"`
	Role   amr.Role `json:"role"`
}

// handleAddMember adds an inactive membership awaiting approval. Admins and
// project curators only.
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	projectID, err := pathID(r, "project_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req membershipRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := amr.ParseRole(string(req.Role)); err != nil {
		s.writeError(w, r, amr.NewError(amr.CodeBadRequest,
			"Geçersiz rol"))
		return
	}

	var membership store.ProjectMembership
	err = s.db.WithTx(r.Context(), func(ctx context.Context,
		db store.Storage) error {

		if _, err := db.GetProject(ctx, projectID); err != nil {
			return amr.NewError(amr.CodeNotFound, "Proje bulunamadı")
		}

		actor, err := s.projectActor(ctx, id, projectID)
		if err != nil {
			return err
		}
		actingRole, err := workflow.RequireRoles(actor,
			[]amr.Role{amr.RoleAdmin, amr.RoleCurator}, true)
		if err != nil {
			return err
		}

		target, err := db.GetUser(ctx, req.UserID)
		if err != nil || !target.IsActive {
			return amr.NewError(amr.CodeNotFound,
				"Hedef kullanıcı bulunamadı veya pasif")
		}

		if _, err := db.GetMembership(ctx, req.UserID,
			projectID); err == nil {

			return amr.NewError(amr.CodeConflict, "Üye zaten mevcut")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		membership, err = db.CreateMembership(ctx,
			store.CreateMembershipParams{
				UserID:    req.UserID,
				ProjectID: projectID,
				Role:      req.Role,
			})
		if err != nil {
			return err
		}

		_, err = audit.Record(ctx, db, audit.Entry{
			ActorID:    &id.UserID,
			ActorRole:  &actingRole,
			Action:     audit.ActionMembershipRequested,
			EntityType: audit.EntityMembership,
			EntityID:   &membership.ID,
			Metadata: map[string]any{
				"project_id":     projectID,
				"target_user_id": req.UserID,
				"role":           req.Role,
			},
		})
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newMembershipPublic(membership))
}

type membershipUpdateRequest struct {
	Role     *amr.Role `json:"role"`
	IsActive *bool     `json:"is_active"`
}

// handleUpdateMember changes a membership's role or active flag. Admins and
// project curators only.
func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	projectID, err := pathID(r, "project_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	memberUserID, err := pathID(r, "member_user_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req membershipUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Role == nil && req.IsActive == nil {
		s.writeError(w, r, amr.NewError(amr.CodeBadRequest,
			"Güncellenecek değişiklik yok"))
		return
	}
	if req.Role != nil {
		if _, err := amr.ParseRole(string(*req.Role)); err != nil {
			s.writeError(w, r, amr.NewError(amr.CodeBadRequest,
				"Geçersiz rol"))
			return
		}
	}

	var membership store.ProjectMembership
	err = s.db.WithTx(r.Context(), func(ctx context.Context,
		db store.Storage) error {

		if _, err := db.GetProject(ctx, projectID); err != nil {
			return amr.NewError(amr.CodeNotFound, "Proje bulunamadı")
		}

		actor, err := s.projectActor(ctx, id, projectID)
		if err != nil {
			return err
		}
		actingRole, err := workflow.RequireRoles(actor,
			[]amr.Role{amr.RoleAdmin, amr.RoleCurator}, true)
		if err != nil {
			return err
		}

		existing, err := db.GetMembership(ctx, memberUserID, projectID)
		if err != nil {
			return amr.NewError(amr.CodeNotFound,
				"Üyelik bulunamadı")
		}

		params := store.UpdateMembershipParams{
			ID:       existing.ID,
			Role:     req.Role,
			IsActive: req.IsActive,
		}

		// Re-activating a never-approved membership counts as the
		// approval.
		if req.IsActive != nil && *req.IsActive &&
			existing.ApprovedAt == nil {

			now := time.Now().UTC()
			params.ApprovedAt = &now
		}

		membership, err = db.UpdateMembership(ctx, params)
		if err != nil {
			return err
		}

		meta := map[string]any{
			"project_id":     projectID,
			"target_user_id": memberUserID,
		}
		if req.Role != nil {
			meta["before_role"] = existing.Role
			meta["after_role"] = membership.Role
		}
		if req.IsActive != nil {
			meta["before_active"] = existing.IsActive
			meta["after_active"] = membership.IsActive
		}

		_, err = audit.Record(ctx, db, audit.Entry{
			ActorID:    &id.UserID,
			ActorRole:  &actingRole,
			Action:     audit.ActionMembershipUpdated,
			EntityType: audit.EntityMembership,
			EntityID:   &membership.ID,
			Metadata:   meta,
		})
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newMembershipPublic(membership))
}

// handleApproveMember activates a membership. Admins and project curators
// only.
func (s *Server) handleApproveMember(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	projectID, err := pathID(r, "project_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	memberUserID, err := pathID(r, "member_user_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var membership store.ProjectMembership
	err = s.db.WithTx(r.Context(), func(ctx context.Context,
		db store.Storage) error {

		if _, err := db.GetProject(ctx, projectID); err != nil {
			return amr.NewError(amr.CodeNotFound, "Proje bulunamadı")
		}

		actor, err := s.projectActor(ctx, id, projectID)
		if err != nil {
			return err
		}
		actingRole, err := workflow.RequireRoles(actor,
			[]amr.Role{amr.RoleAdmin, amr.RoleCurator}, true)
		if err != nil {
			return err
		}

		existing, err := db.GetMembership(ctx, memberUserID, projectID)
		if err != nil {
			return amr.NewError(amr.CodeNotFound, "Üye bulunamadı")
		}
		if existing.IsActive && existing.ApprovedAt != nil {
			return amr.NewError(amr.CodeConflict, "Üyelik zaten aktif")
		}

		approvedAt := time.Now().UTC()
		membership, err = db.ApproveMembership(ctx, existing.ID,
			approvedAt)
		if err != nil {
			return err
		}

		_, err = audit.Record(ctx, db, audit.Entry{
			ActorID:    &id.UserID,
			ActorRole:  &actingRole,
			Action:     audit.ActionMembershipApproved,
			EntityType: audit.EntityMembership,
			EntityID:   &membership.ID,
			Metadata: map[string]any{
				"project_id":     projectID,
				"target_user_id": memberUserID,
				"role":           membership.Role,
				"approved_at":    approvedAt,
			},
		})
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newMembershipPublic(membership))
}
