package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
)

// SentenceStore implementation.

const sentenceColumns = `id, project_id, text, source, difficulty_tag,
	status, created_at, updated_at`

func scanSentence(row interface{ Scan(dest ...any) error }) (Sentence, error) {
	var (
		sent                 Sentence
		source, difficulty   sql.NullString
		status               string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&sent.ID, &sent.ProjectID, &sent.Text, &source, &difficulty,
		&status, &createdAt, &updatedAt,
	)
	if err != nil {
		return Sentence{}, err
	}

	sent.Source = strPtr(source)
	sent.DifficultyTag = strPtr(difficulty)
	sent.Status = amr.SentenceStatus(status)
	sent.CreatedAt = time.Unix(createdAt, 0).UTC()
	sent.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return sent, nil
}

// CreateSentence creates a new sentence in status NEW.
func (s *SQLStore) CreateSentence(ctx context.Context,
	params CreateSentenceParams) (Sentence, error) {

	now := time.Now().Unix()
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO sentences (project_id, text, source,
			difficulty_tag, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		params.ProjectID, params.Text, nullStr(params.Source),
		nullStr(params.DifficultyTag), string(amr.StatusNew), now, now,
	)
	if err != nil {
		return Sentence{}, fmt.Errorf("failed to create sentence: %w",
			err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Sentence{}, fmt.Errorf("failed to get sentence id: %w",
			err)
	}

	return s.GetSentence(ctx, id)
}

// GetSentence retrieves a sentence by its ID.
func (s *SQLStore) GetSentence(ctx context.Context, id int64) (Sentence,
	error) {

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+sentenceColumns+` FROM sentences WHERE id = ?`, id,
	)

	sent, err := scanSentence(row)
	if err != nil {
		return Sentence{}, mapRowErr(err, "get sentence")
	}
	return sent, nil
}

// ListSentences retrieves all sentences of a project ordered by ID.
func (s *SQLStore) ListSentences(ctx context.Context,
	projectID int64) ([]Sentence, error) {

	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+sentenceColumns+` FROM sentences
		WHERE project_id = ? ORDER BY id`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sentences: %w", err)
	}
	defer rows.Close()

	var sentences []Sentence
	for rows.Next() {
		sent, err := scanSentence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sentence: %w",
				err)
		}
		sentences = append(sentences, sent)
	}

	return sentences, rows.Err()
}

// UpdateSentenceStatus sets a sentence's status and bumps updated_at.
func (s *SQLStore) UpdateSentenceStatus(ctx context.Context, id int64,
	status amr.SentenceStatus) (Sentence, error) {

	res, err := s.conn.ExecContext(ctx, `
		UPDATE sentences SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id,
	)
	if err != nil {
		return Sentence{}, fmt.Errorf("failed to update sentence "+
			"status: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Sentence{}, ErrNotFound
	}

	return s.GetSentence(ctx, id)
}

// SearchSentences performs a full-text search over sentence text and source
// within a project using FTS5. The query uses FTS5 syntax.
func (s *SQLStore) SearchSentences(ctx context.Context, projectID int64,
	query string, limit int) ([]SentenceSearchResult, error) {

	rows, err := s.conn.QueryContext(ctx, `
		SELECT s.id, s.project_id, s.text, s.source, s.difficulty_tag,
		       s.status, s.created_at, s.updated_at, fts.rank
		FROM sentences s
		JOIN sentences_fts fts ON s.id = fts.rowid
		WHERE sentences_fts MATCH ? AND s.project_id = ?
		ORDER BY fts.rank
		LIMIT ?`, query, projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search sentences: %w", err)
	}
	defer rows.Close()

	var results []SentenceSearchResult
	for rows.Next() {
		var (
			r                    SentenceSearchResult
			source, difficulty   sql.NullString
			status               string
			createdAt, updatedAt int64
		)
		err := rows.Scan(
			&r.ID, &r.ProjectID, &r.Text, &source, &difficulty,
			&status, &createdAt, &updatedAt, &r.Rank,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search "+
				"result: %w", err)
		}

		r.Source = strPtr(source)
		r.DifficultyTag = strPtr(difficulty)
		r.Status = amr.SentenceStatus(status)
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		results = append(results, r)
	}

	return results, rows.Err()
}

// AssignmentStore implementation.

const assignmentColumns = `id, sentence_id, user_id, role, is_blind,
	is_active, created_at, updated_at`

func scanAssignment(row interface{ Scan(dest ...any) error }) (Assignment,
	error) {

	var (
		a                    Assignment
		role                 string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&a.ID, &a.SentenceID, &a.UserID, &role, &a.IsBlind,
		&a.IsActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return Assignment{}, err
	}

	a.Role = amr.Role(role)
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return a, nil
}

// CreateAssignment creates a new active assignment.
func (s *SQLStore) CreateAssignment(ctx context.Context,
	params CreateAssignmentParams) (Assignment, error) {

	now := time.Now().Unix()
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO assignments (sentence_id, user_id, role, is_blind,
			is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)`,
		params.SentenceID, params.UserID, string(params.Role),
		params.IsBlind, now, now,
	)
	if err != nil {
		return Assignment{}, fmt.Errorf("failed to create "+
			"assignment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Assignment{}, fmt.Errorf("failed to get assignment "+
			"id: %w", err)
	}

	return s.GetAssignment(ctx, id)
}

// GetAssignment retrieves an assignment by its ID.
func (s *SQLStore) GetAssignment(ctx context.Context, id int64) (Assignment,
	error) {

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id,
	)

	a, err := scanAssignment(row)
	if err != nil {
		return Assignment{}, mapRowErr(err, "get assignment")
	}
	return a, nil
}

func (s *SQLStore) listAssignments(ctx context.Context, query string,
	args ...any) ([]Assignment, error) {

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan "+
				"assignment: %w", err)
		}
		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

// ListAssignmentsForSentence retrieves all assignments of a sentence.
func (s *SQLStore) ListAssignmentsForSentence(ctx context.Context,
	sentenceID int64) ([]Assignment, error) {

	return s.listAssignments(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE sentence_id = ? ORDER BY id`, sentenceID,
	)
}

// ListActiveAssignmentsForSentence retrieves the active assignments of a
// sentence.
func (s *SQLStore) ListActiveAssignmentsForSentence(ctx context.Context,
	sentenceID int64) ([]Assignment, error) {

	return s.listAssignments(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE sentence_id = ? AND is_active = 1 ORDER BY id`,
		sentenceID,
	)
}

// GetActiveAssignmentForUser retrieves the caller's active assignment on a
// sentence.
func (s *SQLStore) GetActiveAssignmentForUser(ctx context.Context, sentenceID,
	userID int64) (Assignment, error) {

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE sentence_id = ? AND user_id = ? AND is_active = 1
		ORDER BY id LIMIT 1`, sentenceID, userID,
	)

	a, err := scanAssignment(row)
	if err != nil {
		return Assignment{}, mapRowErr(err, "get active assignment")
	}
	return a, nil
}

// DeactivateAssignment marks an assignment inactive.
func (s *SQLStore) DeactivateAssignment(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE assignments SET is_active = 0, updated_at = ?
		WHERE id = ?`, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate assignment: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// CountActiveAssignments returns per-user active assignment counts for a
// project and role.
func (s *SQLStore) CountActiveAssignments(ctx context.Context,
	projectID int64, role amr.Role) (map[int64]int64, error) {

	rows, err := s.conn.QueryContext(ctx, `
		SELECT a.user_id, COUNT(*)
		FROM assignments a
		JOIN sentences s ON s.id = a.sentence_id
		WHERE s.project_id = ? AND a.role = ? AND a.is_active = 1
		GROUP BY a.user_id`, projectID, string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count assignments: %w", err)
	}
	defer rows.Close()

	load := make(map[int64]int64)
	for rows.Next() {
		var (
			userID, count int64
		)
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan assignment "+
				"count: %w", err)
		}
		load[userID] = count
	}

	return load, rows.Err()
}

// AnnotationStore implementation.

const annotationColumns = `id, sentence_id, assignment_id, author_id,
	penman_text, validity_report, created_at`

func scanAnnotation(row interface{ Scan(dest ...any) error }) (Annotation,
	error) {

	var (
		a            Annotation
		assignmentID sql.NullInt64
		report       sql.NullString
		createdAt    int64
	)
	err := row.Scan(
		&a.ID, &a.SentenceID, &assignmentID, &a.AuthorID,
		&a.PenmanText, &report, &createdAt,
	)
	if err != nil {
		return Annotation{}, err
	}

	a.AssignmentID = i64Ptr(assignmentID)
	a.ValidityReport = strPtr(report)
	a.CreatedAt = time.Unix(createdAt, 0).UTC()

	return a, nil
}

// CreateAnnotation creates a new annotation.
func (s *SQLStore) CreateAnnotation(ctx context.Context,
	params CreateAnnotationParams) (Annotation, error) {

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO annotations (sentence_id, assignment_id, author_id,
			penman_text, validity_report, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		params.SentenceID, nullI64(params.AssignmentID),
		params.AuthorID, params.PenmanText,
		nullStr(params.ValidityReport), time.Now().Unix(),
	)
	if err != nil {
		return Annotation{}, fmt.Errorf("failed to create "+
			"annotation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Annotation{}, fmt.Errorf("failed to get annotation "+
			"id: %w", err)
	}

	return s.GetAnnotation(ctx, id)
}

// GetAnnotation retrieves an annotation by its ID.
func (s *SQLStore) GetAnnotation(ctx context.Context, id int64) (Annotation,
	error) {

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+annotationColumns+` FROM annotations WHERE id = ?`, id,
	)

	a, err := scanAnnotation(row)
	if err != nil {
		return Annotation{}, mapRowErr(err, "get annotation")
	}
	return a, nil
}

// ListAnnotationsForSentence retrieves all annotations of a sentence.
func (s *SQLStore) ListAnnotationsForSentence(ctx context.Context,
	sentenceID int64) ([]Annotation, error) {

	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+annotationColumns+` FROM annotations
		WHERE sentence_id = ? ORDER BY id`, sentenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	defer rows.Close()

	var annotations []Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan "+
				"annotation: %w", err)
		}
		annotations = append(annotations, a)
	}

	return annotations, rows.Err()
}

// ReviewStore implementation.

const reviewColumns = `id, annotation_id, reviewer_id, decision, score,
	comment, created_at`

func scanReview(row interface{ Scan(dest ...any) error }) (Review, error) {
	var (
		r         Review
		decision  string
		score     sql.NullFloat64
		comment   sql.NullString
		createdAt int64
	)
	err := row.Scan(
		&r.ID, &r.AnnotationID, &r.ReviewerID, &decision, &score,
		&comment, &createdAt,
	)
	if err != nil {
		return Review{}, err
	}

	r.Decision = amr.ReviewDecision(decision)
	r.Score = f64Ptr(score)
	r.Comment = strPtr(comment)
	r.CreatedAt = time.Unix(createdAt, 0).UTC()

	return r, nil
}

// CreateReview creates a new review.
func (s *SQLStore) CreateReview(ctx context.Context,
	params CreateReviewParams) (Review, error) {

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO reviews (annotation_id, reviewer_id, decision,
			score, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		params.AnnotationID, params.ReviewerID,
		string(params.Decision), nullF64(params.Score),
		nullStr(params.Comment), time.Now().Unix(),
	)
	if err != nil {
		return Review{}, fmt.Errorf("failed to create review: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Review{}, fmt.Errorf("failed to get review id: %w", err)
	}

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id,
	)

	r, err := scanReview(row)
	if err != nil {
		return Review{}, mapRowErr(err, "get review")
	}
	return r, nil
}

// ListReviewsForAnnotation retrieves all reviews of an annotation.
func (s *SQLStore) ListReviewsForAnnotation(ctx context.Context,
	annotationID int64) ([]Review, error) {

	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+reviewColumns+` FROM reviews
		WHERE annotation_id = ? ORDER BY id`, annotationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w",
				err)
		}
		reviews = append(reviews, r)
	}

	return reviews, rows.Err()
}

// HasRejectReview reports whether any annotation of the sentence carries a
// reject review.
func (s *SQLStore) HasRejectReview(ctx context.Context,
	sentenceID int64) (bool, error) {

	var count int64
	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM reviews r
		JOIN annotations a ON a.id = r.annotation_id
		WHERE a.sentence_id = ? AND r.decision = ?`,
		sentenceID, string(amr.DecisionReject),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count reject "+
			"reviews: %w", err)
	}

	return count > 0, nil
}

// AdjudicationStore implementation.

const adjudicationColumns = `id, sentence_id, curator_id, final_penman,
	decision_note, source_annotation_ids, created_at`

func scanAdjudication(
	row interface{ Scan(dest ...any) error }) (Adjudication, error) {

	var (
		a         Adjudication
		note      sql.NullString
		sources   sql.NullString
		createdAt int64
	)
	err := row.Scan(
		&a.ID, &a.SentenceID, &a.CuratorID, &a.FinalPenman, &note,
		&sources, &createdAt,
	)
	if err != nil {
		return Adjudication{}, err
	}

	a.DecisionNote = strPtr(note)
	if err := decodeJSON(sources, &a.SourceAnnotationIDs); err != nil {
		return Adjudication{}, err
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()

	return a, nil
}

// CreateAdjudication creates a new adjudication.
func (s *SQLStore) CreateAdjudication(ctx context.Context,
	params CreateAdjudicationParams) (Adjudication, error) {

	var sources any
	if params.SourceAnnotationIDs != nil {
		sources = params.SourceAnnotationIDs
	}
	sourcesJSON, err := encodeJSON(sources)
	if err != nil {
		return Adjudication{}, err
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO adjudications (sentence_id, curator_id,
			final_penman, decision_note, source_annotation_ids,
			created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		params.SentenceID, params.CuratorID, params.FinalPenman,
		nullStr(params.DecisionNote), sourcesJSON, time.Now().Unix(),
	)
	if err != nil {
		return Adjudication{}, fmt.Errorf("failed to create "+
			"adjudication: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Adjudication{}, fmt.Errorf("failed to get "+
			"adjudication id: %w", err)
	}

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+adjudicationColumns+` FROM adjudications
		WHERE id = ?`, id,
	)

	a, err := scanAdjudication(row)
	if err != nil {
		return Adjudication{}, mapRowErr(err, "get adjudication")
	}
	return a, nil
}

// GetAdjudicationForSentence retrieves the most recent adjudication of a
// sentence.
func (s *SQLStore) GetAdjudicationForSentence(ctx context.Context,
	sentenceID int64) (Adjudication, error) {

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+adjudicationColumns+` FROM adjudications
		WHERE sentence_id = ? ORDER BY id DESC LIMIT 1`, sentenceID,
	)

	a, err := scanAdjudication(row)
	if err != nil {
		return Adjudication{}, mapRowErr(err, "get adjudication")
	}
	return a, nil
}
