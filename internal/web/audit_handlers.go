package web

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/store"
)

const maxAuditPageSize = 200

// handleListAuditLogs returns a page of audit-log entries with optional
// filters. Admins and curators only.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if id.Role != amr.RoleAdmin && id.Role != amr.RoleCurator {
		s.writeError(w, r, amr.NewError(amr.CodeTransitionForbidden,
			"%s rolü bu işlem için yetkili değil.", id.Role))
		return
	}

	query := r.URL.Query()
	filter := store.AuditLogFilter{
		Limit:  50,
		Offset: 0,
	}

	queryInt(query, "actor_id").WhenSome(func(v int64) {
		filter.ActorID = &v
	})
	queryInt(query, "entity_id").WhenSome(func(v int64) {
		filter.EntityID = &v
	})
	queryString(query, "action").WhenSome(func(v string) {
		filter.Action = &v
	})
	queryString(query, "entity_type").WhenSome(func(v string) {
		filter.EntityType = &v
	})
	queryInt(query, "limit").WhenSome(func(v int64) {
		if v >= 1 && v <= maxAuditPageSize {
			filter.Limit = int(v)
		}
	})
	queryInt(query, "offset").WhenSome(func(v int64) {
		if v >= 0 {
			filter.Offset = int(v)
		}
	})

	logs, err := s.db.ListAuditLogs(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page := auditLogPage{
		Limit:  filter.Limit,
		Offset: filter.Offset,
		Items:  make([]auditLogPublic, 0, len(logs)),
	}
	for _, log := range logs {
		page.Items = append(page.Items, newAuditLogPublic(log))
	}
	writeJSON(w, http.StatusOK, page)
}

// queryInt parses an optional integer query parameter. Unparseable values
// are treated as absent.
func queryInt(query url.Values, name string) fn.Option[int64] {
	raw := query.Get(name)
	if raw == "" {
		return fn.None[int64]()
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fn.None[int64]()
	}
	return fn.Some(v)
}

// queryString returns an optional string query parameter.
func queryString(query url.Values, name string) fn.Option[string] {
	raw := query.Get(name)
	if raw == "" {
		return fn.None[string]()
	}
	return fn.Some(raw)
}
