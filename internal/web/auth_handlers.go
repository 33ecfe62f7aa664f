package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/audit"
	"github.com/amrlab/amrflow/internal/auth"
	"github.com/amrlab/amrflow/internal/store"
)

type registerRequest struct {
	Username string  `json:"username"`
	Email    *string `json:"email"`
	Password string  `json:"password"`
}

// handleRegister creates a new user in the pending role. A pending user can
// sign in but may only call /auth/me until an admin approves the account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		s.writeError(w, r, amr.NewError(amr.CodeBadRequest,
			"Kullanıcı adı ve parola zorunludur"))
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var user store.User
	err = s.db.WithTx(r.Context(), func(ctx context.Context,
		db store.Storage) error {

		if _, err := db.GetUserByUsername(ctx, req.Username); err == nil {
			return amr.NewError(amr.CodeConflict,
				"Kullanıcı adı kullanılıyor")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		user, err = db.CreateUser(ctx, store.CreateUserParams{
			Username:       req.Username,
			Email:          req.Email,
			HashedPassword: hashed,
			Role:           amr.RolePending,
		})
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.log.InfoContext(r.Context(), "user registered",
		"user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusCreated, newUserPublic(user))
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleToken exchanges a username and password for an access token.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	invalid := amr.NewError(amr.CodeAuthInvalid,
		"Geçersiz kimlik bilgileri")

	user, err := s.db.GetUserByUsername(r.Context(), req.Username)
	if err != nil || !user.IsActive {
		s.writeError(w, r, invalid)
		return
	}
	if !auth.CheckPassword(req.Password, user.HashedPassword) {
		s.writeError(w, r, invalid)
		return
	}

	token, err := s.issuer.Issue(user.ID, user.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      user.ID,
		Role:        user.Role,
	})
}

// handleMe returns the authenticated user. Pending users are allowed here so
// they can see their approval state.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticateAllowPending(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.db.GetUser(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, amr.NewError(amr.CodeNotFound,
			"Kullanıcı bulunamadı"))
		return
	}

	writeJSON(w, http.StatusOK, newUserPublic(user))
}

// handlePendingUsers lists users awaiting approval. Admin only.
func (s *Server) handlePendingUsers(w http.ResponseWriter, r *http.Request) {
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

	users, err := s.db.ListUsersByRole(r.Context(), amr.RolePending)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]userPublic, 0, len(users))
	for _, user := range users {
		out = append(out, newUserPublic(user))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleApproveUser promotes a pending user to guest. Admin only.
func (s *Server) handleApproveUser(w http.ResponseWriter, r *http.Request) {
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

	targetID, err := pathID(r, "user_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var user store.User
	err = s.db.WithTx(r.Context(), func(ctx context.Context,
		db store.Storage) error {

		target, err := db.GetUser(ctx, targetID)
		if err != nil {
			return amr.NewError(amr.CodeNotFound, "Kullanıcı bulunamadı")
		}
		if target.Role != amr.RolePending {
			return amr.NewError(amr.CodeConflict,
				"Kullanıcı zaten onaylanmış")
		}

		user, err = db.SetUserRole(ctx, targetID, amr.RoleGuest, true)
		if err != nil {
			return err
		}

		actorRole := id.Role
		_, err = audit.Record(ctx, db, audit.Entry{
			ActorID:    &id.UserID,
			ActorRole:  &actorRole,
			Action:     audit.ActionUserApproved,
			EntityType: audit.EntityUser,
			EntityID:   &targetID,
			Metadata: map[string]any{
				"before_role": target.Role,
				"after_role":  user.Role,
				"approved_at": time.Now().UTC(),
			},
		})
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.log.InfoContext(r.Context(), "user approved",
		"user_id", user.ID, "approved_by", id.UserID)
	writeJSON(w, http.StatusOK, newUserPublic(user))
}
