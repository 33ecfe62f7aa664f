package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/store"
	"github.com/amrlab/amrflow/internal/workflow"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// identity is the authenticated caller before any project context is
// attached.
type identity struct {
	UserID int64
	Role   amr.Role
}

// api wraps a handler with the JSON content type. CORS and request-id
// wrapping happen once at the top of the chain.
func (s *Server) api(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}
}

// requestIDMiddleware tags every request with an X-Request-Id, minting one
// when the client did not send one.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware applies the configured origin allow-list.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if s.settings.CORSAllowCredentials {
				w.Header().Set(
					"Access-Control-Allow-Credentials", "true",
				)
			}
			w.Header().Set("Access-Control-Allow-Methods",
				"GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers",
				"Authorization, Content-Type, X-Request-Id, "+
					"X-User-Id, X-User-Role")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.settings.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// authenticate resolves the caller from the Authorization bearer token, or
// from the X-User-Id/X-User-Role header pair kept for internal tooling. A
// pending user is rejected here; /auth/me bypasses this and calls
// authenticateAllowPending directly.
func (s *Server) authenticate(r *http.Request) (identity, error) {
	id, err := s.authenticateAllowPending(r)
	if err != nil {
		return identity{}, err
	}
	if id.Role == amr.RolePending {
		return identity{}, amr.NewError(amr.CodePendingApproval,
			"Kullanıcı onay bekliyor")
	}
	return id, nil
}

func (s *Server) authenticateAllowPending(r *http.Request) (identity, error) {
	ctx := r.Context()

	if token, ok := bearerToken(r); ok {
		claims, err := s.issuer.Parse(token)
		if err != nil {
			return identity{}, err
		}
		return s.verifyIdentity(ctx, claims.UserID, claims.Role)
	}

	// Header-based identity for trusted internal callers, e.g. the
	// assignment engine.
	rawID := r.Header.Get("X-User-Id")
	rawRole := r.Header.Get("X-User-Role")
	if rawID == "" || rawRole == "" {
		return identity{}, amr.NewError(amr.CodeAuthMissing,
			"Kimlik doğrulaması eksik. Authorization: Bearer veya "+
				"X-User-Id ve X-User-Role header'larını sağlayın.")
	}

	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return identity{}, amr.NewError(amr.CodeAuthInvalid,
			"Geçersiz X-User-Id")
	}
	role, err := amr.ParseRole(rawRole)
	if err != nil {
		return identity{}, amr.NewError(amr.CodeAuthInvalid,
			"Geçersiz rol")
	}

	return s.verifyIdentity(ctx, userID, role)
}

// verifyIdentity checks the claimed identity against the persisted user.
func (s *Server) verifyIdentity(ctx context.Context, userID int64,
	role amr.Role) (identity, error) {

	user, err := s.db.GetUser(ctx, userID)
	if err != nil || !user.IsActive {
		return identity{}, amr.NewError(amr.CodeAuthInvalid,
			"Kullanıcı aktif değil veya bulunamadı")
	}
	if user.Role != role {
		return identity{}, amr.NewError(amr.CodeAuthInvalid,
			"Rol bilgisi ile kullanıcı eşleşmiyor")
	}

	return identity{UserID: user.ID, Role: user.Role}, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// projectActor builds the workflow actor for an operation scoped to a
// project. Admins and the assignment engine act on their global role;
// everyone else must hold an active, approved membership which supplies
// the project role.
func (s *Server) projectActor(ctx context.Context, id identity,
	projectID int64) (workflow.Actor, error) {

	actor := workflow.Actor{UserID: id.UserID, Role: id.Role}
	if id.Role == amr.RoleAdmin || id.Role == amr.RoleAssignmentEngine {
		return actor, nil
	}

	membership, err := s.db.GetMembership(ctx, id.UserID, projectID)
	if err != nil || !membership.IsActive || membership.ApprovedAt == nil {
		return workflow.Actor{}, amr.NewError(amr.CodeTransitionForbidden,
			"Proje üyeliği onaylanmamış veya pasif")
	}

	role := membership.Role
	actor.ProjectRole = &role
	return actor, nil
}

// sentenceActor resolves the sentence's project and builds the actor for it.
func (s *Server) sentenceActor(ctx context.Context, id identity,
	sentenceID int64) (workflow.Actor, store.Sentence, error) {

	sentence, err := s.db.GetSentence(ctx, sentenceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return workflow.Actor{}, store.Sentence{}, amr.NewError(
				amr.CodeNotFound, "Cümle bulunamadı")
		}
		return workflow.Actor{}, store.Sentence{}, err
	}

	actor, err := s.projectActor(ctx, id, sentence.ProjectID)
	if err != nil {
		return workflow.Actor{}, store.Sentence{}, err
	}
	return actor, sentence, nil
}

// writeJSON writes the response body as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already out; nothing sensible left to do.
		return
	}
}

// decodeJSON decodes the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return amr.NewError(amr.CodeBadRequest, "Geçersiz istek gövdesi")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, amr.NewError(amr.CodeNotFound, "Geçersiz %s", name)
	}
	return id, nil
}
