package export

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/store"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedCorpus populates a mock store with one accepted, one in-review and one
// new sentence, plus a validation failure and a review reject.
func seedCorpus(t *testing.T) (*store.MockStore, store.Project) {
	t.Helper()
	ctx := context.Background()
	db := store.NewMockStore()

	project, err := db.CreateProject(ctx, store.CreateProjectParams{
		Name:                  "tr-amr-pilot",
		Language:              "tr",
		AmrVersion:            "1.0",
		RoleSetVersion:        "tr-propbank",
		ValidationRuleVersion: "v1",
		VersionTag:            "v1",
	})
	require.NoError(t, err)

	annotator, err := db.CreateUser(ctx, store.CreateUserParams{
		Username: "annotator", HashedPassword: "x",
		Role: amr.RoleAnnotator,
	})
	require.NoError(t, err)
	reviewer, err := db.CreateUser(ctx, store.CreateUserParams{
		Username: "reviewer", HashedPassword: "x",
		Role: amr.RoleReviewer,
	})
	require.NoError(t, err)

	source := "news-corpus"
	mkSentence := func(text string,
		status amr.SentenceStatus) store.Sentence {

		s, err := db.CreateSentence(ctx, store.CreateSentenceParams{
			ProjectID: project.ID,
			Text:      text,
			Source:    &source,
		})
		require.NoError(t, err)
		if status != amr.StatusNew {
			s, err = db.UpdateSentenceStatus(ctx, s.ID, status)
			require.NoError(t, err)
		}
		return s
	}

	accepted := mkSentence("Adam kitap aldı.", amr.StatusAccepted)
	inReview := mkSentence("Kedi uyuyor.", amr.StatusInReview)
	mkSentence("Kuş ötüyor.", amr.StatusNew)

	report := `{"is_valid":true,"amr_version":"1.0",` +
		`"role_set_version":"tr-propbank","rule_version":"v1",` +
		`"triple_count":3,"canonical_penman":"(a / al-01)",` +
		`"errors":[],"warnings":[]}`
	annotation, err := db.CreateAnnotation(ctx, store.CreateAnnotationParams{
		SentenceID:     accepted.ID,
		AuthorID:       annotator.ID,
		PenmanText:     "(a / al-01)",
		ValidityReport: &report,
	})
	require.NoError(t, err)

	_, err = db.CreateReview(ctx, store.CreateReviewParams{
		AnnotationID: annotation.ID,
		ReviewerID:   reviewer.ID,
		Decision:     amr.DecisionApprove,
	})
	require.NoError(t, err)

	_, err = db.CreateAdjudication(ctx, store.CreateAdjudicationParams{
		SentenceID:          accepted.ID,
		CuratorID:           reviewer.ID,
		FinalPenman:         "(a / al-01)",
		SourceAnnotationIDs: []int64{annotation.ID},
	})
	require.NoError(t, err)

	penman := "(b / bozuk"
	rule := "v1"
	_, err = db.CreateFailedSubmission(ctx,
		store.CreateFailedSubmissionParams{
			ProjectID:   project.ID,
			SentenceID:  inReview.ID,
			UserID:      &annotator.ID,
			FailureType: amr.FailureValidation,
			Reason:      "Parantez dengesi hatalı.",
			Details: map[string]any{
				"contact_email": "annotator@example.com",
				"client_ip":     "10.1.2.3",
			},
			RuleVersion:     &rule,
			SubmittedPenman: &penman,
		})
	require.NoError(t, err)

	_, err = db.CreateFailedSubmission(ctx,
		store.CreateFailedSubmissionParams{
			ProjectID:   project.ID,
			SentenceID:  accepted.ID,
			UserID:      &annotator.ID,
			ReviewerID:  &reviewer.ID,
			FailureType: amr.FailureReviewReject,
			Reason:      "low quality",
		})
	require.NoError(t, err)

	return db, project
}

func TestExportAccessAndLookup(t *testing.T) {
	t.Parallel()

	db, project := seedCorpus(t)
	svc := NewService(db, discardLogger())
	ctx := context.Background()

	_, err := svc.Export(ctx, amr.RoleAnnotator, Request{
		ProjectID: project.ID, Level: amr.LevelAll,
	})
	require.True(t, amr.IsCode(err, amr.CodeExportAccess))

	_, err = svc.Export(ctx, amr.RoleAdmin, Request{
		ProjectID: 9999, Level: amr.LevelAll,
	})
	require.True(t, amr.IsCode(err, amr.CodeExportNotFound))
}

func TestExportLevelSelection(t *testing.T) {
	t.Parallel()

	db, project := seedCorpus(t)
	svc := NewService(db, discardLogger())
	ctx := context.Background()

	statuses := func(p *Payload) []string {
		var out []string
		for _, r := range p.Records {
			out = append(out, r.Sentence.Status)
		}
		return out
	}

	gold, err := svc.Export(ctx, amr.RoleCurator, Request{
		ProjectID: project.ID, Level: amr.LevelGold,
		PiiStrategy: amr.PiiInclude, IncludeManifest: true,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ACCEPTED"}, statuses(gold))
	require.Len(t, gold.Records[0].Annotations, 1)
	require.Len(t, gold.Records[0].Reviews, 1)
	require.NotNil(t, gold.Records[0].Adjudication)
	require.NotNil(t, gold.Records[0].Annotations[0].ValidityReport)
	require.True(t, gold.Records[0].Annotations[0].ValidityReport.IsValid)

	silver, err := svc.Export(ctx, amr.RoleAdmin, Request{
		ProjectID: project.ID, Level: amr.LevelSilver,
		PiiStrategy: amr.PiiInclude,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"IN_REVIEW"}, statuses(silver))

	all, err := svc.Export(ctx, amr.RoleAdmin, Request{
		ProjectID: project.ID, Level: amr.LevelAll,
		PiiStrategy: amr.PiiInclude,
	})
	require.NoError(t, err)
	require.Len(t, all.Records, 3)

	// Failure tiers carry no sentence records at all.
	failed, err := svc.Export(ctx, amr.RoleAdmin, Request{
		ProjectID: project.ID, Level: amr.LevelFailed,
		PiiStrategy: amr.PiiInclude,
	})
	require.NoError(t, err)
	require.Empty(t, failed.Records)
	require.Len(t, failed.FailedSubmissions, 1)
	require.Equal(t, "validation", failed.FailedSubmissions[0].FailureType)

	rejected, err := svc.Export(ctx, amr.RoleAdmin, Request{
		ProjectID: project.ID, Level: amr.LevelRejected,
		PiiStrategy: amr.PiiInclude,
	})
	require.NoError(t, err)
	require.Len(t, rejected.FailedSubmissions, 1)
	require.Equal(t, "review_reject",
		rejected.FailedSubmissions[0].FailureType)

	both, err := svc.Export(ctx, amr.RoleAdmin, Request{
		ProjectID: project.ID, Level: amr.LevelAll,
		PiiStrategy:   amr.PiiInclude,
		IncludeFailed: true, IncludeRejected: true,
	})
	require.NoError(t, err)
	require.Len(t, both.FailedSubmissions, 2)
}

func TestExportStripNeverLeaksPii(t *testing.T) {
	t.Parallel()

	db, project := seedCorpus(t)
	svc := NewService(db, discardLogger())

	payload, err := svc.Export(context.Background(), amr.RoleAdmin,
		Request{
			ProjectID: project.ID, Level: amr.LevelAll,
			PiiStrategy:   amr.PiiStrip,
			IncludeFailed: true, IncludeRejected: true,
		})
	require.NoError(t, err)

	for _, record := range payload.Records {
		require.Nil(t, record.Sentence.Source)
		for _, a := range record.Annotations {
			require.Nil(t, a.AuthorID)
		}
		for _, r := range record.Reviews {
			require.Nil(t, r.ReviewerID)
		}
		if record.Adjudication != nil {
			require.Nil(t, record.Adjudication.CuratorID)
		}
	}
	for _, failure := range payload.FailedSubmissions {
		require.Nil(t, failure.UserID)
		require.Nil(t, failure.ReviewerID)
		if failure.Details != nil {
			require.Nil(t, failure.Details["contact_email"])
			require.Nil(t, failure.Details["client_ip"])
		}
	}
}

// TestExportAnonymizeDeterministic asserts two exports over unchanged data
// produce identical records and anonymized values.
func TestExportAnonymizeDeterministic(t *testing.T) {
	t.Parallel()

	db, project := seedCorpus(t)
	svc := NewService(db, discardLogger())
	ctx := context.Background()

	req := Request{
		ProjectID: project.ID, Level: amr.LevelAll,
		Format: amr.FormatJSON, PiiStrategy: amr.PiiAnonymize,
		IncludeFailed: true, IncludeRejected: true,
	}

	first, err := svc.Export(ctx, amr.RoleAdmin, req)
	require.NoError(t, err)
	second, err := svc.Export(ctx, amr.RoleAdmin, req)
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first.Records)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second.Records)
	require.NoError(t, err)
	require.Equal(t, string(firstJSON), string(secondJSON))

	// Anonymized values are transformed, not passed through.
	author := first.Records[0].Annotations[0].AuthorID
	require.NotNil(t, author)
	require.Less(t, *author, int64(10_000_000))

	source := first.Records[0].Sentence.Source
	require.NotNil(t, source)
	require.True(t, strings.HasPrefix(*source, "src-"))

	for _, failure := range first.FailedSubmissions {
		if email, ok := failure.Details["contact_email"].(string); ok {
			require.True(t, strings.HasSuffix(email,
				"@example.local"))
		}
		if ip, ok := failure.Details["client_ip"].(string); ok {
			require.Equal(t, "0.0.0.0", ip)
		}
	}
}

func TestManifestCounts(t *testing.T) {
	t.Parallel()

	db, project := seedCorpus(t)
	svc := NewService(db, discardLogger())

	payload, err := svc.Export(context.Background(), amr.RoleAdmin,
		Request{
			ProjectID: project.ID, Level: amr.LevelAll,
			PiiStrategy: amr.PiiAnonymize, IncludeManifest: true,
			IncludeFailed: true, IncludeRejected: true,
		})
	require.NoError(t, err)

	require.NotNil(t, payload.Manifest)
	m := payload.Manifest
	require.Equal(t, "1.0", m.Project.AmrVersion)
	require.Equal(t, "tr-propbank", m.Project.RoleSetVersion)
	require.Equal(t, "v1", m.Project.ValidationRuleVersion)
	require.Equal(t, "v1", m.Project.VersionTag)
	require.Equal(t, len(payload.Records), m.Export.RecordCount)
	require.Equal(t, len(payload.FailedSubmissions), m.Export.FailedCount)
}

func TestWriteFileFormats(t *testing.T) {
	t.Parallel()

	db, project := seedCorpus(t)
	svc := NewService(db, discardLogger())
	dir := t.TempDir()

	req := Request{
		ProjectID: project.ID, Level: amr.LevelGold,
		Format: amr.FormatJSON, PiiStrategy: amr.PiiAnonymize,
		IncludeManifest: true,
	}
	payload, err := svc.Export(context.Background(), amr.RoleAdmin, req)
	require.NoError(t, err)

	path, err := WriteFile(payload, req, dir, nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(filepath.Base(path), "project-"))
	require.True(t, strings.HasSuffix(path, ".json"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded Payload
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, payload.ProjectID, decoded.ProjectID)
	require.Len(t, decoded.Records, len(payload.Records))

	// ZIP layout: data.json plus manifest.json at the archive root.
	req.Format = amr.FormatManifestJSON
	jobID := int64(7)
	path, err = WriteFile(payload, req, dir, &jobID)
	require.NoError(t, err)
	require.Contains(t, filepath.Base(path), "-job-7-")
	require.True(t, strings.HasSuffix(path, ".zip"))

	reader, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	require.ElementsMatch(t, []string{"data.json", "manifest.json"}, names)

	req.Format = amr.ExportFormat("yaml")
	_, err = WriteFile(payload, req, dir, nil)
	require.True(t, amr.IsCode(err, amr.CodeExportFormatUnsupported))
}

func TestWorkerLifecycle(t *testing.T) {
	t.Parallel()

	db, project := seedCorpus(t)
	svc := NewService(db, discardLogger())
	dir := t.TempDir()
	worker := NewWorker(db, svc, dir, time.Second, discardLogger())
	ctx := context.Background()

	// Empty queue: nothing processed, no error.
	processed, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	require.False(t, processed)

	admin, err := db.CreateUser(ctx, store.CreateUserParams{
		Username: "admin", HashedPassword: "x", Role: amr.RoleAdmin,
	})
	require.NoError(t, err)

	job, err := db.CreateExportJob(ctx, store.CreateExportJobParams{
		ProjectID:       project.ID,
		CreatedBy:       admin.ID,
		Format:          amr.FormatManifestJSON,
		Level:           amr.LevelAll,
		PiiStrategy:     amr.PiiAnonymize,
		IncludeManifest: true,
	})
	require.NoError(t, err)

	processed, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	done, err := db.GetExportJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, amr.JobCompleted, done.Status)
	require.NotNil(t, done.ResultPath)
	_, err = os.Stat(*done.ResultPath)
	require.NoError(t, err)

	// A job pointing at a missing project terminates as failed.
	bad, err := db.CreateExportJob(ctx, store.CreateExportJobParams{
		ProjectID:   9999,
		CreatedBy:   admin.ID,
		Format:      amr.FormatJSON,
		Level:       amr.LevelAll,
		PiiStrategy: amr.PiiInclude,
	})
	require.NoError(t, err)

	processed, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	failedJob, err := db.GetExportJob(ctx, bad.ID)
	require.NoError(t, err)
	require.Equal(t, amr.JobFailed, failedJob.Status)
	require.NotNil(t, failedJob.ErrorMessage)
}
