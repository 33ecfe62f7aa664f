package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/db"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()

	conn, err := db.Open(filepath.Join(t.TempDir(), "amrflow.db"),
		slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewSQLStore(conn)
}

// TestSQLStoreTransactions asserts that committed transactions persist, that
// a callback error rolls every write back, and that read transactions see
// the committed state.
func TestSQLStoreTransactions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestSQLStore(t)

	var projectID int64
	err := s.WithTx(ctx, func(ctx context.Context, tx Storage) error {
		project, err := tx.CreateProject(ctx, CreateProjectParams{
			Name:                  "tr-amr-pilot",
			Language:              "tr",
			AmrVersion:            "1.0",
			RoleSetVersion:        "tr-propbank",
			ValidationRuleVersion: "v1",
			VersionTag:            "v1",
		})
		if err != nil {
			return err
		}
		projectID = project.ID
		return nil
	})
	require.NoError(t, err)

	// A failing callback rolls back all of its writes, and the domain
	// error surfaces unchanged through the executor.
	boom := amr.NewError(amr.CodeConflict, "geri al")
	err = s.WithTx(ctx, func(ctx context.Context, tx Storage) error {
		_, err := tx.CreateProject(ctx, CreateProjectParams{
			Name:     "kaybolacak",
			Language: "tr",
		})
		if err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, amr.IsCode(err, amr.CodeConflict))

	err = s.WithReadTx(ctx, func(ctx context.Context, tx Storage) error {
		projects, err := tx.ListProjects(ctx)
		if err != nil {
			return err
		}
		require.Len(t, projects, 1)
		require.Equal(t, projectID, projects[0].ID)
		return nil
	})
	require.NoError(t, err)
}
