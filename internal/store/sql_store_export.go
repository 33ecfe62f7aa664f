package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
)

// FailureStore implementation.

const failedSubmissionColumns = `id, project_id, sentence_id, assignment_id,
	annotation_id, user_id, reviewer_id, failure_type, reason, details,
	amr_version, role_set_version, rule_version, submitted_penman,
	created_at`

func scanFailedSubmission(
	row interface{ Scan(dest ...any) error }) (FailedSubmission, error) {

	var (
		f                                  FailedSubmission
		assignmentID, annotationID         sql.NullInt64
		userID, reviewerID                 sql.NullInt64
		failureType                        string
		details                            sql.NullString
		amrVersion, roleSetVer, ruleVer    sql.NullString
		submittedPenman                    sql.NullString
		createdAt                          int64
	)
	err := row.Scan(
		&f.ID, &f.ProjectID, &f.SentenceID, &assignmentID,
		&annotationID, &userID, &reviewerID, &failureType, &f.Reason,
		&details, &amrVersion, &roleSetVer, &ruleVer,
		&submittedPenman, &createdAt,
	)
	if err != nil {
		return FailedSubmission{}, err
	}

	f.AssignmentID = i64Ptr(assignmentID)
	f.AnnotationID = i64Ptr(annotationID)
	f.UserID = i64Ptr(userID)
	f.ReviewerID = i64Ptr(reviewerID)
	f.FailureType = amr.FailureType(failureType)
	if err := decodeJSON(details, &f.Details); err != nil {
		return FailedSubmission{}, err
	}
	f.AmrVersion = strPtr(amrVersion)
	f.RoleSetVersion = strPtr(roleSetVer)
	f.RuleVersion = strPtr(ruleVer)
	f.SubmittedPenman = strPtr(submittedPenman)
	f.CreatedAt = time.Unix(createdAt, 0).UTC()

	return f, nil
}

// CreateFailedSubmission creates a new failed-submission record.
func (s *SQLStore) CreateFailedSubmission(ctx context.Context,
	params CreateFailedSubmissionParams) (FailedSubmission, error) {

	var details any
	if params.Details != nil {
		details = params.Details
	}
	detailsJSON, err := encodeJSON(details)
	if err != nil {
		return FailedSubmission{}, err
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO failed_submissions (project_id, sentence_id,
			assignment_id, annotation_id, user_id, reviewer_id,
			failure_type, reason, details, amr_version,
			role_set_version, rule_version, submitted_penman,
			created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		params.ProjectID, params.SentenceID,
		nullI64(params.AssignmentID), nullI64(params.AnnotationID),
		nullI64(params.UserID), nullI64(params.ReviewerID),
		string(params.FailureType), params.Reason, detailsJSON,
		nullStr(params.AmrVersion), nullStr(params.RoleSetVersion),
		nullStr(params.RuleVersion), nullStr(params.SubmittedPenman),
		time.Now().Unix(),
	)
	if err != nil {
		return FailedSubmission{}, fmt.Errorf("failed to create "+
			"failed submission: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return FailedSubmission{}, fmt.Errorf("failed to get failed "+
			"submission id: %w", err)
	}

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+failedSubmissionColumns+` FROM failed_submissions
		WHERE id = ?`, id,
	)

	f, err := scanFailedSubmission(row)
	if err != nil {
		return FailedSubmission{}, mapRowErr(err,
			"get failed submission")
	}
	return f, nil
}

// ListFailedSubmissions retrieves all failed submissions of a project.
func (s *SQLStore) ListFailedSubmissions(ctx context.Context,
	projectID int64) ([]FailedSubmission, error) {

	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+failedSubmissionColumns+` FROM failed_submissions
		WHERE project_id = ? ORDER BY id`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed "+
			"submissions: %w", err)
	}
	defer rows.Close()

	var failures []FailedSubmission
	for rows.Next() {
		f, err := scanFailedSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failed "+
				"submission: %w", err)
		}
		failures = append(failures, f)
	}

	return failures, rows.Err()
}

// AuditStore implementation.

const auditLogColumns = `id, actor_id, actor_role, action, entity_type,
	entity_id, before_status, after_status, metadata, created_at`

func scanAuditLog(row interface{ Scan(dest ...any) error }) (AuditLog, error) {
	var (
		a                        AuditLog
		actorID, entityID        sql.NullInt64
		actorRole                sql.NullString
		beforeStatus, afterStatus sql.NullString
		metadata                 sql.NullString
		createdAt                int64
	)
	err := row.Scan(
		&a.ID, &actorID, &actorRole, &a.Action, &a.EntityType,
		&entityID, &beforeStatus, &afterStatus, &metadata, &createdAt,
	)
	if err != nil {
		return AuditLog{}, err
	}

	a.ActorID = i64Ptr(actorID)
	a.ActorRole = strPtr(actorRole)
	a.EntityID = i64Ptr(entityID)
	a.BeforeStatus = strPtr(beforeStatus)
	a.AfterStatus = strPtr(afterStatus)
	if err := decodeJSON(metadata, &a.Metadata); err != nil {
		return AuditLog{}, err
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()

	return a, nil
}

// CreateAuditLog appends an audit-log entry.
func (s *SQLStore) CreateAuditLog(ctx context.Context,
	params CreateAuditLogParams) (AuditLog, error) {

	var metadata any
	if params.Metadata != nil {
		metadata = params.Metadata
	}
	metadataJSON, err := encodeJSON(metadata)
	if err != nil {
		return AuditLog{}, err
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_id, actor_role, action,
			entity_type, entity_id, before_status, after_status,
			metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullI64(params.ActorID), nullStr(params.ActorRole),
		params.Action, params.EntityType, nullI64(params.EntityID),
		nullStr(params.BeforeStatus), nullStr(params.AfterStatus),
		metadataJSON, time.Now().Unix(),
	)
	if err != nil {
		return AuditLog{}, fmt.Errorf("failed to create audit "+
			"log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return AuditLog{}, fmt.Errorf("failed to get audit log "+
			"id: %w", err)
	}

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+auditLogColumns+` FROM audit_logs WHERE id = ?`, id,
	)

	a, err := scanAuditLog(row)
	if err != nil {
		return AuditLog{}, mapRowErr(err, "get audit log")
	}
	return a, nil
}

// ListAuditLogs retrieves audit-log entries matching the filter, ordered by
// created_at then ID.
func (s *SQLStore) ListAuditLogs(ctx context.Context,
	filter AuditLogFilter) ([]AuditLog, error) {

	var (
		conds []string
		args  []any
	)
	if filter.ActorID != nil {
		conds = append(conds, "actor_id = ?")
		args = append(args, *filter.ActorID)
	}
	if filter.Action != nil {
		conds = append(conds, "action = ?")
		args = append(args, *filter.Action)
	}
	if filter.EntityType != nil {
		conds = append(conds, "entity_type = ?")
		args = append(args, *filter.EntityType)
	}
	if filter.EntityID != nil {
		conds = append(conds, "entity_id = ?")
		args = append(args, *filter.EntityID)
	}

	query := `SELECT ` + auditLogColumns + ` FROM audit_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit "+
				"log: %w", err)
		}
		logs = append(logs, a)
	}

	return logs, rows.Err()
}

// ExportJobStore implementation.

const exportJobColumns = `id, project_id, created_by, status, format, level,
	pii_strategy, filters, include_manifest, include_failed,
	include_rejected, result_path, error_message, created_at, updated_at`

func scanExportJob(row interface{ Scan(dest ...any) error }) (ExportJob,
	error) {

	var (
		j                         ExportJob
		status, format, level     string
		piiStrategy               string
		filters                   sql.NullString
		resultPath, errorMessage  sql.NullString
		createdAt, updatedAt      int64
	)
	err := row.Scan(
		&j.ID, &j.ProjectID, &j.CreatedBy, &status, &format, &level,
		&piiStrategy, &filters, &j.IncludeManifest, &j.IncludeFailed,
		&j.IncludeRejected, &resultPath, &errorMessage, &createdAt,
		&updatedAt,
	)
	if err != nil {
		return ExportJob{}, err
	}

	j.Status = amr.JobStatus(status)
	j.Format = amr.ExportFormat(format)
	j.Level = amr.ExportLevel(level)
	j.PiiStrategy = amr.PiiStrategy(piiStrategy)
	if err := decodeJSON(filters, &j.Filters); err != nil {
		return ExportJob{}, err
	}
	j.ResultPath = strPtr(resultPath)
	j.ErrorMessage = strPtr(errorMessage)
	j.CreatedAt = time.Unix(createdAt, 0).UTC()
	j.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return j, nil
}

// CreateExportJob creates a new export job in status queued.
func (s *SQLStore) CreateExportJob(ctx context.Context,
	params CreateExportJobParams) (ExportJob, error) {

	var filters any
	if params.Filters != nil {
		filters = params.Filters
	}
	filtersJSON, err := encodeJSON(filters)
	if err != nil {
		return ExportJob{}, err
	}

	now := time.Now().Unix()
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO export_jobs (project_id, created_by, status,
			format, level, pii_strategy, filters, include_manifest,
			include_failed, include_rejected, created_at,
			updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		params.ProjectID, params.CreatedBy,
		string(amr.JobQueued), string(params.Format),
		string(params.Level), string(params.PiiStrategy), filtersJSON,
		params.IncludeManifest, params.IncludeFailed,
		params.IncludeRejected, now, now,
	)
	if err != nil {
		return ExportJob{}, fmt.Errorf("failed to create export "+
			"job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return ExportJob{}, fmt.Errorf("failed to get export job "+
			"id: %w", err)
	}

	return s.GetExportJob(ctx, id)
}

// GetExportJob retrieves an export job by its ID.
func (s *SQLStore) GetExportJob(ctx context.Context, id int64) (ExportJob,
	error) {

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+exportJobColumns+` FROM export_jobs WHERE id = ?`, id,
	)

	j, err := scanExportJob(row)
	if err != nil {
		return ExportJob{}, mapRowErr(err, "get export job")
	}
	return j, nil
}

// ListExportJobs retrieves all export jobs of a project, newest first.
func (s *SQLStore) ListExportJobs(ctx context.Context,
	projectID int64) ([]ExportJob, error) {

	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+exportJobColumns+` FROM export_jobs
		WHERE project_id = ? ORDER BY id DESC`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list export jobs: %w", err)
	}
	defer rows.Close()

	var jobs []ExportJob
	for rows.Next() {
		j, err := scanExportJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export "+
				"job: %w", err)
		}
		jobs = append(jobs, j)
	}

	return jobs, rows.Err()
}

// NextQueuedExportJob retrieves the oldest queued export job.
func (s *SQLStore) NextQueuedExportJob(ctx context.Context) (ExportJob,
	error) {

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+exportJobColumns+` FROM export_jobs
		WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		string(amr.JobQueued),
	)

	j, err := scanExportJob(row)
	if err != nil {
		return ExportJob{}, mapRowErr(err, "get queued export job")
	}
	return j, nil
}

// UpdateExportJobStatus updates a job's status and optionally its result
// path or error message.
func (s *SQLStore) UpdateExportJobStatus(ctx context.Context,
	params UpdateExportJobStatusParams) (ExportJob, error) {

	res, err := s.conn.ExecContext(ctx, `
		UPDATE export_jobs
		SET status = ?,
		    result_path = COALESCE(?, result_path),
		    error_message = COALESCE(?, error_message),
		    updated_at = ?
		WHERE id = ?`,
		string(params.Status), nullStr(params.ResultPath),
		nullStr(params.ErrorMessage), time.Now().Unix(), params.ID,
	)
	if err != nil {
		return ExportJob{}, fmt.Errorf("failed to update export "+
			"job: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ExportJob{}, ErrNotFound
	}

	return s.GetExportJob(ctx, params.ID)
}
