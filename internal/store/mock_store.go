package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
)

// MockStore provides an in-memory implementation of the Storage interface for
// testing purposes. All data is stored in maps. The mock is not safe for
// concurrent use; tests drive it from a single goroutine.
type MockStore struct {
	users           map[int64]User
	usersByName     map[string]int64
	profiles        map[int64]UserProfile // keyed by user ID
	projects        map[int64]Project
	memberships     map[int64]ProjectMembership
	sentences       map[int64]Sentence
	assignments     map[int64]Assignment
	annotations     map[int64]Annotation
	reviews         map[int64]Review
	adjudications   map[int64]Adjudication
	failures        map[int64]FailedSubmission
	auditLogs       []AuditLog
	exportJobs      map[int64]ExportJob

	// Counters for auto-incrementing IDs.
	nextUserID         int64
	nextProfileID      int64
	nextProjectID      int64
	nextMembershipID   int64
	nextSentenceID     int64
	nextAssignmentID   int64
	nextAnnotationID   int64
	nextReviewID       int64
	nextAdjudicationID int64
	nextFailureID      int64
	nextAuditLogID     int64
	nextExportJobID    int64
}

// NewMockStore creates a new in-memory mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		users:              make(map[int64]User),
		usersByName:        make(map[string]int64),
		profiles:           make(map[int64]UserProfile),
		projects:           make(map[int64]Project),
		memberships:        make(map[int64]ProjectMembership),
		sentences:          make(map[int64]Sentence),
		assignments:        make(map[int64]Assignment),
		annotations:        make(map[int64]Annotation),
		reviews:            make(map[int64]Review),
		adjudications:      make(map[int64]Adjudication),
		failures:           make(map[int64]FailedSubmission),
		exportJobs:         make(map[int64]ExportJob),
		nextUserID:         1,
		nextProfileID:      1,
		nextProjectID:      1,
		nextMembershipID:   1,
		nextSentenceID:     1,
		nextAssignmentID:   1,
		nextAnnotationID:   1,
		nextReviewID:       1,
		nextAdjudicationID: 1,
		nextFailureID:      1,
		nextAuditLogID:     1,
		nextExportJobID:    1,
	}
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// WithTx executes the function within a "transaction" (just runs the function
// for the mock).
func (m *MockStore) WithTx(ctx context.Context,
	fn func(ctx context.Context, s Storage) error) error {

	return fn(ctx, m)
}

// WithReadTx executes the function within a read-only "transaction" (just
// runs the function for the mock).
func (m *MockStore) WithReadTx(ctx context.Context,
	fn func(ctx context.Context, s Storage) error) error {

	return fn(ctx, m)
}

// IsConsistent verifies that the store's internal state is consistent. Used
// for property-based testing.
func (m *MockStore) IsConsistent() bool {
	for _, a := range m.assignments {
		if _, ok := m.sentences[a.SentenceID]; !ok {
			return false
		}
	}
	for _, a := range m.annotations {
		if _, ok := m.sentences[a.SentenceID]; !ok {
			return false
		}
	}
	for _, r := range m.reviews {
		if _, ok := m.annotations[r.AnnotationID]; !ok {
			return false
		}
	}
	for _, s := range m.sentences {
		if _, ok := m.projects[s.ProjectID]; !ok {
			return false
		}
	}
	return true
}

// UserStore implementation.

func (m *MockStore) CreateUser(_ context.Context,
	params CreateUserParams) (User, error) {

	u := User{
		ID:             m.nextUserID,
		Username:       params.Username,
		Email:          params.Email,
		HashedPassword: params.HashedPassword,
		Role:           params.Role,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}

	m.nextUserID++
	m.users[u.ID] = u
	m.usersByName[u.Username] = u.ID

	return u, nil
}

func (m *MockStore) GetUser(_ context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MockStore) GetUserByUsername(_ context.Context,
	username string) (User, error) {

	id, ok := m.usersByName[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *MockStore) ListUsersByRole(_ context.Context,
	role amr.Role) ([]User, error) {

	var users []User
	for _, id := range m.sortedUserIDs() {
		if m.users[id].Role == role {
			users = append(users, m.users[id])
		}
	}
	return users, nil
}

func (m *MockStore) SetUserRole(_ context.Context, id int64, role amr.Role,
	isActive bool) (User, error) {

	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}

	u.Role = role
	u.IsActive = isActive
	m.users[id] = u

	return u, nil
}

func (m *MockStore) UpsertUserProfile(_ context.Context,
	params UpsertUserProfileParams) (UserProfile, error) {

	now := time.Now().UTC()
	p, ok := m.profiles[params.UserID]
	if !ok {
		p = UserProfile{
			ID:        m.nextProfileID,
			UserID:    params.UserID,
			CreatedAt: now,
		}
		m.nextProfileID++
	}

	p.Skills = params.Skills
	p.IsActive = params.IsActive
	p.UpdatedAt = now
	m.profiles[params.UserID] = p

	return p, nil
}

func (m *MockStore) GetUserProfile(_ context.Context,
	userID int64) (UserProfile, error) {

	p, ok := m.profiles[userID]
	if !ok {
		return UserProfile{}, ErrNotFound
	}
	return p, nil
}

func (m *MockStore) GetUserProfiles(_ context.Context,
	userIDs []int64) ([]UserProfile, error) {

	sorted := append([]int64(nil), userIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var profiles []UserProfile
	for _, id := range sorted {
		if p, ok := m.profiles[id]; ok {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

// ProjectStore implementation.

func (m *MockStore) CreateProject(_ context.Context,
	params CreateProjectParams) (Project, error) {

	now := time.Now().UTC()
	p := Project{
		ID:                    m.nextProjectID,
		Name:                  params.Name,
		Language:              params.Language,
		AmrVersion:            params.AmrVersion,
		RoleSetVersion:        params.RoleSetVersion,
		ValidationRuleVersion: params.ValidationRuleVersion,
		VersionTag:            params.VersionTag,
		Description:           params.Description,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	m.nextProjectID++
	m.projects[p.ID] = p

	return p, nil
}

func (m *MockStore) GetProject(_ context.Context, id int64) (Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (m *MockStore) ListProjects(_ context.Context) ([]Project, error) {
	ids := make([]int64, 0, len(m.projects))
	for id := range m.projects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	projects := make([]Project, 0, len(ids))
	for _, id := range ids {
		projects = append(projects, m.projects[id])
	}
	return projects, nil
}

func (m *MockStore) CountSentencesByStatus(_ context.Context,
	projectID int64) (map[amr.SentenceStatus]int64, error) {

	counts := make(map[amr.SentenceStatus]int64)
	for _, s := range m.sentences {
		if s.ProjectID == projectID {
			counts[s.Status]++
		}
	}
	return counts, nil
}

func (m *MockStore) CountMembershipsByRole(_ context.Context,
	projectID int64) (map[amr.Role]int64, error) {

	counts := make(map[amr.Role]int64)
	for _, mem := range m.memberships {
		if mem.ProjectID == projectID && mem.IsActive &&
			mem.ApprovedAt != nil {

			counts[mem.Role]++
		}
	}
	return counts, nil
}

func (m *MockStore) CreateMembership(_ context.Context,
	params CreateMembershipParams) (ProjectMembership, error) {

	mem := ProjectMembership{
		ID:        m.nextMembershipID,
		UserID:    params.UserID,
		ProjectID: params.ProjectID,
		Role:      params.Role,
		IsActive:  false,
		CreatedAt: time.Now().UTC(),
	}

	m.nextMembershipID++
	m.memberships[mem.ID] = mem

	return mem, nil
}

func (m *MockStore) GetMembership(_ context.Context, userID,
	projectID int64) (ProjectMembership, error) {

	for _, mem := range m.memberships {
		if mem.UserID == userID && mem.ProjectID == projectID {
			return mem, nil
		}
	}
	return ProjectMembership{}, ErrNotFound
}

func (m *MockStore) ApproveMembership(_ context.Context, id int64,
	approvedAt time.Time) (ProjectMembership, error) {

	mem, ok := m.memberships[id]
	if !ok {
		return ProjectMembership{}, ErrNotFound
	}

	mem.IsActive = true
	mem.ApprovedAt = &approvedAt
	m.memberships[id] = mem

	return mem, nil
}

func (m *MockStore) UpdateMembership(_ context.Context,
	params UpdateMembershipParams) (ProjectMembership, error) {

	mem, ok := m.memberships[params.ID]
	if !ok {
		return ProjectMembership{}, ErrNotFound
	}

	if params.Role != nil {
		mem.Role = *params.Role
	}
	if params.IsActive != nil {
		mem.IsActive = *params.IsActive
	}
	if params.ApprovedAt != nil {
		mem.ApprovedAt = params.ApprovedAt
	}
	m.memberships[params.ID] = mem

	return mem, nil
}

func (m *MockStore) ListMemberships(_ context.Context,
	projectID int64) ([]ProjectMembership, error) {

	ids := make([]int64, 0, len(m.memberships))
	for id, mem := range m.memberships {
		if mem.ProjectID == projectID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	memberships := make([]ProjectMembership, 0, len(ids))
	for _, id := range ids {
		memberships = append(memberships, m.memberships[id])
	}
	return memberships, nil
}

func (m *MockStore) ListEligibleMembers(_ context.Context, projectID int64,
	role amr.Role) ([]int64, error) {

	var userIDs []int64
	for _, mem := range m.memberships {
		if mem.ProjectID == projectID && mem.Role == role &&
			mem.IsActive && mem.ApprovedAt != nil {

			userIDs = append(userIDs, mem.UserID)
		}
	}
	sort.Slice(userIDs, func(i, j int) bool {
		return userIDs[i] < userIDs[j]
	})
	return userIDs, nil
}

// SentenceStore implementation.

func (m *MockStore) CreateSentence(_ context.Context,
	params CreateSentenceParams) (Sentence, error) {

	now := time.Now().UTC()
	s := Sentence{
		ID:            m.nextSentenceID,
		ProjectID:     params.ProjectID,
		Text:          params.Text,
		Source:        params.Source,
		DifficultyTag: params.DifficultyTag,
		Status:        amr.StatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	m.nextSentenceID++
	m.sentences[s.ID] = s

	return s, nil
}

func (m *MockStore) GetSentence(_ context.Context, id int64) (Sentence,
	error) {

	s, ok := m.sentences[id]
	if !ok {
		return Sentence{}, ErrNotFound
	}
	return s, nil
}

func (m *MockStore) ListSentences(_ context.Context,
	projectID int64) ([]Sentence, error) {

	ids := make([]int64, 0, len(m.sentences))
	for id, s := range m.sentences {
		if s.ProjectID == projectID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	sentences := make([]Sentence, 0, len(ids))
	for _, id := range ids {
		sentences = append(sentences, m.sentences[id])
	}
	return sentences, nil
}

func (m *MockStore) UpdateSentenceStatus(_ context.Context, id int64,
	status amr.SentenceStatus) (Sentence, error) {

	s, ok := m.sentences[id]
	if !ok {
		return Sentence{}, ErrNotFound
	}

	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	m.sentences[id] = s

	return s, nil
}

func (m *MockStore) SearchSentences(_ context.Context, projectID int64,
	query string, limit int) ([]SentenceSearchResult, error) {

	// Plain substring match stands in for FTS in the mock.
	lowered := strings.ToLower(query)

	var results []SentenceSearchResult
	for _, id := range m.sortedSentenceIDs() {
		s := m.sentences[id]
		if s.ProjectID != projectID {
			continue
		}
		if !strings.Contains(strings.ToLower(s.Text), lowered) {
			continue
		}
		results = append(results, SentenceSearchResult{Sentence: s})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// AssignmentStore implementation.

func (m *MockStore) CreateAssignment(_ context.Context,
	params CreateAssignmentParams) (Assignment, error) {

	now := time.Now().UTC()
	a := Assignment{
		ID:         m.nextAssignmentID,
		SentenceID: params.SentenceID,
		UserID:     params.UserID,
		Role:       params.Role,
		IsBlind:    params.IsBlind,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.nextAssignmentID++
	m.assignments[a.ID] = a

	return a, nil
}

func (m *MockStore) GetAssignment(_ context.Context, id int64) (Assignment,
	error) {

	a, ok := m.assignments[id]
	if !ok {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

func (m *MockStore) ListAssignmentsForSentence(_ context.Context,
	sentenceID int64) ([]Assignment, error) {

	return m.filterAssignments(func(a Assignment) bool {
		return a.SentenceID == sentenceID
	}), nil
}

func (m *MockStore) ListActiveAssignmentsForSentence(_ context.Context,
	sentenceID int64) ([]Assignment, error) {

	return m.filterAssignments(func(a Assignment) bool {
		return a.SentenceID == sentenceID && a.IsActive
	}), nil
}

func (m *MockStore) GetActiveAssignmentForUser(_ context.Context, sentenceID,
	userID int64) (Assignment, error) {

	matches := m.filterAssignments(func(a Assignment) bool {
		return a.SentenceID == sentenceID && a.UserID == userID &&
			a.IsActive
	})
	if len(matches) == 0 {
		return Assignment{}, ErrNotFound
	}
	return matches[0], nil
}

func (m *MockStore) DeactivateAssignment(_ context.Context, id int64) error {
	a, ok := m.assignments[id]
	if !ok {
		return ErrNotFound
	}

	a.IsActive = false
	a.UpdatedAt = time.Now().UTC()
	m.assignments[id] = a

	return nil
}

func (m *MockStore) CountActiveAssignments(_ context.Context,
	projectID int64, role amr.Role) (map[int64]int64, error) {

	load := make(map[int64]int64)
	for _, a := range m.assignments {
		if !a.IsActive || a.Role != role {
			continue
		}
		s, ok := m.sentences[a.SentenceID]
		if !ok || s.ProjectID != projectID {
			continue
		}
		load[a.UserID]++
	}
	return load, nil
}

// AnnotationStore implementation.

func (m *MockStore) CreateAnnotation(_ context.Context,
	params CreateAnnotationParams) (Annotation, error) {

	a := Annotation{
		ID:             m.nextAnnotationID,
		SentenceID:     params.SentenceID,
		AssignmentID:   params.AssignmentID,
		AuthorID:       params.AuthorID,
		PenmanText:     params.PenmanText,
		ValidityReport: params.ValidityReport,
		CreatedAt:      time.Now().UTC(),
	}

	m.nextAnnotationID++
	m.annotations[a.ID] = a

	return a, nil
}

func (m *MockStore) GetAnnotation(_ context.Context, id int64) (Annotation,
	error) {

	a, ok := m.annotations[id]
	if !ok {
		return Annotation{}, ErrNotFound
	}
	return a, nil
}

func (m *MockStore) ListAnnotationsForSentence(_ context.Context,
	sentenceID int64) ([]Annotation, error) {

	ids := make([]int64, 0, len(m.annotations))
	for id, a := range m.annotations {
		if a.SentenceID == sentenceID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	annotations := make([]Annotation, 0, len(ids))
	for _, id := range ids {
		annotations = append(annotations, m.annotations[id])
	}
	return annotations, nil
}

// ReviewStore implementation.

func (m *MockStore) CreateReview(_ context.Context,
	params CreateReviewParams) (Review, error) {

	r := Review{
		ID:           m.nextReviewID,
		AnnotationID: params.AnnotationID,
		ReviewerID:   params.ReviewerID,
		Decision:     params.Decision,
		Score:        params.Score,
		Comment:      params.Comment,
		CreatedAt:    time.Now().UTC(),
	}

	m.nextReviewID++
	m.reviews[r.ID] = r

	return r, nil
}

func (m *MockStore) ListReviewsForAnnotation(_ context.Context,
	annotationID int64) ([]Review, error) {

	ids := make([]int64, 0, len(m.reviews))
	for id, r := range m.reviews {
		if r.AnnotationID == annotationID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	reviews := make([]Review, 0, len(ids))
	for _, id := range ids {
		reviews = append(reviews, m.reviews[id])
	}
	return reviews, nil
}

func (m *MockStore) HasRejectReview(_ context.Context,
	sentenceID int64) (bool, error) {

	for _, r := range m.reviews {
		if r.Decision != amr.DecisionReject {
			continue
		}
		a, ok := m.annotations[r.AnnotationID]
		if ok && a.SentenceID == sentenceID {
			return true, nil
		}
	}
	return false, nil
}

// AdjudicationStore implementation.

func (m *MockStore) CreateAdjudication(_ context.Context,
	params CreateAdjudicationParams) (Adjudication, error) {

	a := Adjudication{
		ID:                  m.nextAdjudicationID,
		SentenceID:          params.SentenceID,
		CuratorID:           params.CuratorID,
		FinalPenman:         params.FinalPenman,
		DecisionNote:        params.DecisionNote,
		SourceAnnotationIDs: params.SourceAnnotationIDs,
		CreatedAt:           time.Now().UTC(),
	}

	m.nextAdjudicationID++
	m.adjudications[a.ID] = a

	return a, nil
}

func (m *MockStore) GetAdjudicationForSentence(_ context.Context,
	sentenceID int64) (Adjudication, error) {

	var (
		found  bool
		latest Adjudication
	)
	for _, a := range m.adjudications {
		if a.SentenceID != sentenceID {
			continue
		}
		if !found || a.ID > latest.ID {
			latest = a
			found = true
		}
	}
	if !found {
		return Adjudication{}, ErrNotFound
	}
	return latest, nil
}

// FailureStore implementation.

func (m *MockStore) CreateFailedSubmission(_ context.Context,
	params CreateFailedSubmissionParams) (FailedSubmission, error) {

	f := FailedSubmission{
		ID:              m.nextFailureID,
		ProjectID:       params.ProjectID,
		SentenceID:      params.SentenceID,
		AssignmentID:    params.AssignmentID,
		AnnotationID:    params.AnnotationID,
		UserID:          params.UserID,
		ReviewerID:      params.ReviewerID,
		FailureType:     params.FailureType,
		Reason:          params.Reason,
		Details:         params.Details,
		AmrVersion:      params.AmrVersion,
		RoleSetVersion:  params.RoleSetVersion,
		RuleVersion:     params.RuleVersion,
		SubmittedPenman: params.SubmittedPenman,
		CreatedAt:       time.Now().UTC(),
	}

	m.nextFailureID++
	m.failures[f.ID] = f

	return f, nil
}

func (m *MockStore) ListFailedSubmissions(_ context.Context,
	projectID int64) ([]FailedSubmission, error) {

	ids := make([]int64, 0, len(m.failures))
	for id, f := range m.failures {
		if f.ProjectID == projectID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	failures := make([]FailedSubmission, 0, len(ids))
	for _, id := range ids {
		failures = append(failures, m.failures[id])
	}
	return failures, nil
}

// AuditStore implementation.

func (m *MockStore) CreateAuditLog(_ context.Context,
	params CreateAuditLogParams) (AuditLog, error) {

	a := AuditLog{
		ID:           m.nextAuditLogID,
		ActorID:      params.ActorID,
		ActorRole:    params.ActorRole,
		Action:       params.Action,
		EntityType:   params.EntityType,
		EntityID:     params.EntityID,
		BeforeStatus: params.BeforeStatus,
		AfterStatus:  params.AfterStatus,
		Metadata:     params.Metadata,
		CreatedAt:    time.Now().UTC(),
	}

	m.nextAuditLogID++
	m.auditLogs = append(m.auditLogs, a)

	return a, nil
}

func (m *MockStore) ListAuditLogs(_ context.Context,
	filter AuditLogFilter) ([]AuditLog, error) {

	var logs []AuditLog
	for _, a := range m.auditLogs {
		if filter.ActorID != nil && (a.ActorID == nil ||
			*a.ActorID != *filter.ActorID) {

			continue
		}
		if filter.Action != nil && a.Action != *filter.Action {
			continue
		}
		if filter.EntityType != nil &&
			a.EntityType != *filter.EntityType {

			continue
		}
		if filter.EntityID != nil && (a.EntityID == nil ||
			*a.EntityID != *filter.EntityID) {

			continue
		}
		logs = append(logs, a)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if filter.Offset >= len(logs) {
		return nil, nil
	}
	logs = logs[filter.Offset:]
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// ExportJobStore implementation.

func (m *MockStore) CreateExportJob(_ context.Context,
	params CreateExportJobParams) (ExportJob, error) {

	now := time.Now().UTC()
	j := ExportJob{
		ID:              m.nextExportJobID,
		ProjectID:       params.ProjectID,
		CreatedBy:       params.CreatedBy,
		Status:          amr.JobQueued,
		Format:          params.Format,
		Level:           params.Level,
		PiiStrategy:     params.PiiStrategy,
		Filters:         params.Filters,
		IncludeManifest: params.IncludeManifest,
		IncludeFailed:   params.IncludeFailed,
		IncludeRejected: params.IncludeRejected,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	m.nextExportJobID++
	m.exportJobs[j.ID] = j

	return j, nil
}

func (m *MockStore) GetExportJob(_ context.Context, id int64) (ExportJob,
	error) {

	j, ok := m.exportJobs[id]
	if !ok {
		return ExportJob{}, ErrNotFound
	}
	return j, nil
}

func (m *MockStore) ListExportJobs(_ context.Context,
	projectID int64) ([]ExportJob, error) {

	ids := make([]int64, 0, len(m.exportJobs))
	for id, j := range m.exportJobs {
		if j.ProjectID == projectID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	jobs := make([]ExportJob, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, m.exportJobs[id])
	}
	return jobs, nil
}

func (m *MockStore) NextQueuedExportJob(_ context.Context) (ExportJob,
	error) {

	var (
		found  bool
		oldest ExportJob
	)
	for _, j := range m.exportJobs {
		if j.Status != amr.JobQueued {
			continue
		}
		if !found || j.ID < oldest.ID {
			oldest = j
			found = true
		}
	}
	if !found {
		return ExportJob{}, ErrNotFound
	}
	return oldest, nil
}

func (m *MockStore) UpdateExportJobStatus(_ context.Context,
	params UpdateExportJobStatusParams) (ExportJob, error) {

	j, ok := m.exportJobs[params.ID]
	if !ok {
		return ExportJob{}, ErrNotFound
	}

	j.Status = params.Status
	if params.ResultPath != nil {
		j.ResultPath = params.ResultPath
	}
	if params.ErrorMessage != nil {
		j.ErrorMessage = params.ErrorMessage
	}
	j.UpdatedAt = time.Now().UTC()
	m.exportJobs[params.ID] = j

	return j, nil
}

// Internal helpers.

func (m *MockStore) sortedUserIDs() []int64 {
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *MockStore) sortedSentenceIDs() []int64 {
	ids := make([]int64, 0, len(m.sentences))
	for id := range m.sentences {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *MockStore) filterAssignments(
	keep func(Assignment) bool) []Assignment {

	ids := make([]int64, 0, len(m.assignments))
	for id, a := range m.assignments {
		if keep(a) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	assignments := make([]Assignment, 0, len(ids))
	for _, id := range ids {
		assignments = append(assignments, m.assignments[id])
	}
	return assignments
}
