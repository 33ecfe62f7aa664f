// Package audit appends immutable audit-log entries for every state change
// and privileged action on the platform. Entries are written through the same
// transaction as the change they describe, so a committed transition always
// carries its audit record.
package audit

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/store"
)

// Entity types recorded in the log.
const (
	EntitySentence   = "sentence"
	EntityUser       = "user"
	EntityProject    = "project"
	EntityMembership = "project_membership"
	EntityExport     = "export_job"
)

// Actions recorded in the log.
const (
	ActionSentenceCreated       = "sentence_created"
	ActionSentenceAssigned      = "sentence_assigned"
	ActionAnnotationSubmitted   = "annotation_submitted"
	ActionReviewRecorded        = "review_recorded"
	ActionAdjudicationCompleted = "adjudication_completed"
	ActionSentenceAccepted      = "sentence_accepted"
	ActionAdjudicationReopened  = "adjudication_reopened"
	ActionUserApproved          = "user_approved"
	ActionMembershipRequested   = "membership_requested"
	ActionMembershipApproved    = "membership_approved"
	ActionMembershipUpdated     = "membership_updated"
	ActionExportRequested       = "export_requested"
)

// Entry describes a single auditable event before normalization.
type Entry struct {
	ActorID      *int64
	ActorRole    *amr.Role
	Action       string
	EntityType   string
	EntityID     *int64
	BeforeStatus *amr.SentenceStatus
	AfterStatus  *amr.SentenceStatus
	Metadata     map[string]any
}

// Record normalizes the entry's metadata and appends it to the audit log
// through db. Pass the transaction-scoped Storage so the entry commits with
// the change it describes.
func Record(ctx context.Context, db store.Storage,
	entry Entry) (store.AuditLog, error) {

	params := store.CreateAuditLogParams{
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
	}

	if entry.ActorRole != nil {
		role := string(*entry.ActorRole)
		params.ActorRole = &role
	}
	if entry.BeforeStatus != nil {
		before := string(*entry.BeforeStatus)
		params.BeforeStatus = &before
	}
	if entry.AfterStatus != nil {
		after := string(*entry.AfterStatus)
		params.AfterStatus = &after
	}
	if len(entry.Metadata) > 0 {
		meta := make(map[string]any, len(entry.Metadata))
		for k, v := range entry.Metadata {
			meta[k] = normalizeValue(v)
		}
		params.Metadata = meta
	}

	log, err := db.CreateAuditLog(ctx, params)
	if err != nil {
		return store.AuditLog{}, fmt.Errorf("unable to write audit "+
			"log: %w", err)
	}

	return log, nil
}

// normalizeValue converts a metadata value into a JSON-stable form: typed
// string enums become plain strings, timestamps become RFC 3339, and maps and
// slices are normalized recursively. Anything without a JSON representation
// is stringified.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:

		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeValue(elem)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		// Named string types such as roles and statuses.
		return rv.String()

	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalizeValue(rv.Index(i).Interface())
		}
		return out

	case reflect.Map:
		out := make(map[string]any, rv.Len())
		for _, key := range rv.MapKeys() {
			out[fmt.Sprint(key.Interface())] =
				normalizeValue(rv.MapIndex(key).Interface())
		}
		return out

	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return normalizeValue(rv.Elem().Interface())

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Int64:

		return rv.Int()

	case reflect.Float32, reflect.Float64:
		return rv.Float()

	default:
		return fmt.Sprint(v)
	}
}
