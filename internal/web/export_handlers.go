package web

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/audit"
	"github.com/amrlab/amrflow/internal/export"
	"github.com/amrlab/amrflow/internal/store"
	"github.com/amrlab/amrflow/internal/workflow"
)

// exportParams decodes the shared export query parameters.
func exportParams(r *http.Request, projectID int64) (export.Request, error) {
	query := r.URL.Query()

	req := export.Request{
		ProjectID:       projectID,
		Level:           amr.LevelGold,
		Format:          amr.FormatJSON,
		PiiStrategy:     amr.PiiInclude,
		IncludeManifest: true,
	}

	if raw := query.Get("level"); raw != "" {
		level, err := amr.ParseExportLevel(raw)
		if err != nil {
			return export.Request{}, amr.NewError(amr.CodeBadRequest,
				"Geçersiz export seviyesi: %s", raw)
		}
		req.Level = level
	}
	if raw := query.Get("format"); raw != "" {
		format, err := amr.ParseExportFormat(raw)
		if err != nil {
			return export.Request{}, amr.NewError(
				amr.CodeExportFormatUnsupported,
				"Desteklenmeyen export formatı: %s", raw)
		}
		req.Format = format
	}
	if raw := query.Get("pii_strategy"); raw != "" {
		strategy, err := amr.ParsePiiStrategy(raw)
		if err != nil {
			return export.Request{}, amr.NewError(amr.CodeBadRequest,
				"Geçersiz PII stratejisi: %s", raw)
		}
		req.PiiStrategy = strategy
	}
	if raw := query.Get("include_manifest"); raw != "" {
		req.IncludeManifest = raw == "true" || raw == "1"
	}
	req.IncludeFailed = query.Get("include_failed") == "true"
	req.IncludeRejected = query.Get("include_rejected") == "true"

	return req, nil
}

// requireExportActor authorizes an export operation on a project and returns
// the acting role.
func (s *Server) requireExportActor(r *http.Request, id identity,
	projectID int64) (amr.Role, error) {

	actor, err := s.projectActor(r.Context(), id, projectID)
	if err != nil {
		return "", err
	}
	return workflow.RequireRoles(actor,
		[]amr.Role{amr.RoleAdmin, amr.RoleCurator}, true)
}

// handleInlineExport assembles and returns the export payload inline, with
// the project's version pins exposed as response headers.
func (s *Server) handleInlineExport(w http.ResponseWriter, r *http.Request) {
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

	project, err := s.db.GetProject(r.Context(), projectID)
	if err != nil {
		s.writeError(w, r, amr.NewError(amr.CodeExportNotFound,
			"Proje bulunamadı"))
		return
	}

	actingRole, err := s.requireExportActor(r, id, projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	req, err := exportParams(r, projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	payload, err := s.exports.Export(r.Context(), actingRole, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("X-Project-AMR-Version", project.AmrVersion)
	w.Header().Set("X-Project-Role-Set-Version", project.RoleSetVersion)
	w.Header().Set("X-Project-Validation-Rule-Version",
		project.ValidationRuleVersion)
	w.Header().Set("X-Project-Version-Tag", project.VersionTag)

	writeJSON(w, http.StatusOK, payload)
}

type exportJobCreateRequest struct {
	Level           amr.ExportLevel  `json:"level"`
	Format          amr.ExportFormat `json:"format"`
	PiiStrategy     amr.PiiStrategy  `json:"pii_strategy"`
	IncludeManifest bool             `json:"include_manifest"`
	IncludeFailed   bool             `json:"include_failed"`
	IncludeRejected bool             `json:"include_rejected"`
}

// handleCreateExportJob enqueues a persistent export job for the worker.
func (s *Server) handleCreateExportJob(w http.ResponseWriter,
	r *http.Request) {

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

	if _, err := s.db.GetProject(r.Context(), projectID); err != nil {
		s.writeError(w, r, amr.NewError(amr.CodeNotFound,
			"Proje bulunamadı"))
		return
	}

	actingRole, err := s.requireExportActor(r, id, projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	req := exportJobCreateRequest{
		Level:           amr.LevelGold,
		Format:          amr.FormatJSON,
		PiiStrategy:     amr.PiiInclude,
		IncludeManifest: true,
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := amr.ParseExportLevel(string(req.Level)); err != nil {
		s.writeError(w, r, amr.NewError(amr.CodeBadRequest,
			"Geçersiz export seviyesi: %s", req.Level))
		return
	}
	if _, err := amr.ParseExportFormat(string(req.Format)); err != nil {
		s.writeError(w, r, amr.NewError(amr.CodeExportFormatUnsupported,
			"Desteklenmeyen export formatı: %s", req.Format))
		return
	}
	if _, err := amr.ParsePiiStrategy(string(req.PiiStrategy)); err != nil {
		s.writeError(w, r, amr.NewError(amr.CodeBadRequest,
			"Geçersiz PII stratejisi: %s", req.PiiStrategy))
		return
	}

	var job store.ExportJob
	err = s.db.WithTx(r.Context(), func(ctx context.Context,
		db store.Storage) error {

		job, err = db.CreateExportJob(ctx, store.CreateExportJobParams{
			ProjectID:       projectID,
			CreatedBy:       id.UserID,
			Format:          req.Format,
			Level:           req.Level,
			PiiStrategy:     req.PiiStrategy,
			IncludeManifest: req.IncludeManifest,
			IncludeFailed:   req.IncludeFailed,
			IncludeRejected: req.IncludeRejected,
		})
		if err != nil {
			return err
		}

		_, err = audit.Record(ctx, db, audit.Entry{
			ActorID:    &id.UserID,
			ActorRole:  &actingRole,
			Action:     audit.ActionExportRequested,
			EntityType: audit.EntityExport,
			EntityID:   &job.ID,
			Metadata: map[string]any{
				"project_id":   projectID,
				"level":        req.Level,
				"format":       req.Format,
				"pii_strategy": req.PiiStrategy,
			},
		})
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.log.InfoContext(r.Context(), "export job queued",
		"job_id", job.ID, "project_id", projectID)
	writeJSON(w, http.StatusCreated, newExportJobPublic(job))
}

// handleListExportJobs lists a project's export jobs, newest first.
func (s *Server) handleListExportJobs(w http.ResponseWriter,
	r *http.Request) {

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

	if _, err := s.db.GetProject(r.Context(), projectID); err != nil {
		s.writeError(w, r, amr.NewError(amr.CodeNotFound,
			"Proje bulunamadı"))
		return
	}

	if _, err := s.requireExportActor(r, id, projectID); err != nil {
		s.writeError(w, r, err)
		return
	}

	jobs, err := s.db.ListExportJobs(r.Context(), projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]exportJobPublic, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, newExportJobPublic(job))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetExportJob returns one export job.
func (s *Server) handleGetExportJob(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	jobID, err := pathID(r, "job_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	job, err := s.db.GetExportJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, r, amr.NewError(amr.CodeNotFound,
			"Export job bulunamadı"))
		return
	}

	if _, err := s.requireExportActor(r, id, job.ProjectID); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newExportJobPublic(job))
}

// handleDownloadExportJob streams a completed job's result file.
func (s *Server) handleDownloadExportJob(w http.ResponseWriter,
	r *http.Request) {

	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	jobID, err := pathID(r, "job_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	job, err := s.db.GetExportJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, r, amr.NewError(amr.CodeNotFound,
			"Export job bulunamadı"))
		return
	}

	if _, err := s.requireExportActor(r, id, job.ProjectID); err != nil {
		s.writeError(w, r, err)
		return
	}

	if job.Status != amr.JobCompleted || job.ResultPath == nil {
		s.writeError(w, r, amr.NewError(amr.CodeConflict,
			"Job tamamlanmadı veya indirme yolu hazır değil"))
		return
	}

	info, err := os.Stat(*job.ResultPath)
	if err != nil || info.IsDir() {
		s.writeError(w, r, amr.NewError(amr.CodeNotFound,
			"Export dosyası bulunamadı"))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		"attachment; filename=\""+filepath.Base(*job.ResultPath)+"\"")
	http.ServeFile(w, r, *job.ResultPath)
}
