package audit

import (
	"context"
	"testing"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/store"
	"github.com/stretchr/testify/require"
)

// TestRecordNormalizesMetadata asserts that enum types, timestamps and
// nested values are flattened into JSON-stable forms.
func TestRecordNormalizesMetadata(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := store.NewMockStore()

	actorID := int64(7)
	actorRole := amr.RoleReviewer
	sentenceID := int64(42)
	before := amr.StatusSubmitted
	after := amr.StatusInReview

	when := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	entry := Entry{
		ActorID:      &actorID,
		ActorRole:    &actorRole,
		Action:       ActionReviewRecorded,
		EntityType:   EntitySentence,
		EntityID:     &sentenceID,
		BeforeStatus: &before,
		AfterStatus:  &after,
		Metadata: map[string]any{
			"decision":    amr.DecisionApprove,
			"reviewed_at": when,
			"annotation_ids": []int64{3, 5},
			"detail": map[string]any{
				"target": amr.StatusAdjudicated,
			},
			"score": (*float64)(nil),
		},
	}

	log, err := Record(ctx, db, entry)
	require.NoError(t, err)

	require.Equal(t, ActionReviewRecorded, log.Action)
	require.Equal(t, EntitySentence, log.EntityType)
	require.Equal(t, "reviewer", *log.ActorRole)
	require.Equal(t, "SUBMITTED", *log.BeforeStatus)
	require.Equal(t, "IN_REVIEW", *log.AfterStatus)

	require.Equal(t, "approve", log.Metadata["decision"])
	require.Equal(t, "2025-03-14T09:26:53Z", log.Metadata["reviewed_at"])
	require.Equal(t, []any{int64(3), int64(5)},
		log.Metadata["annotation_ids"])

	detail, ok := log.Metadata["detail"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ADJUDICATED", detail["target"])

	require.Nil(t, log.Metadata["score"])
}

// TestRecordOmitsEmptyMetadata asserts that an entry without metadata writes
// a nil metadata column.
func TestRecordOmitsEmptyMetadata(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := store.NewMockStore()

	log, err := Record(ctx, db, Entry{
		Action:     ActionSentenceCreated,
		EntityType: EntitySentence,
	})
	require.NoError(t, err)
	require.Nil(t, log.ActorID)
	require.Nil(t, log.Metadata)
}
