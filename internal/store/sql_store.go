package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/db"
)

// dbtx is the subset of database/sql methods shared by *sql.DB and *sql.Tx,
// letting every query run either directly or inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string,
		args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string,
		args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string,
		args ...any) *sql.Row
}

// SQLStore implements the Storage interface with hand-written SQL over a
// SQLite database. Transactions run through the db package's executor, which
// retries on busy/serialization errors and maps driver errors to the typed
// database-agnostic ones.
type SQLStore struct {
	sqlDB *sql.DB
	conn  dbtx
	txer  db.BatchedTx[Storage]
}

// NewSQLStore creates a new SQLStore wrapping the given database connection.
func NewSQLStore(sqlDB *sql.DB) *SQLStore {
	s := &SQLStore{
		sqlDB: sqlDB,
		conn:  sqlDB,
	}
	s.txer = db.NewTransactionExecutor(db.NewBaseDB(sqlDB),
		func(tx *sql.Tx) Storage {
			return &SQLStore{
				sqlDB: sqlDB,
				conn:  tx,
				txer:  s.txer,
			}
		}, slog.Default())

	return s
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.sqlDB.Close()
}

// WithTx executes the given function within a write transaction, retrying it
// when SQLite reports the database busy or locked. The callback must
// therefore be idempotent up to its own writes, which roll back with the
// transaction.
func (s *SQLStore) WithTx(ctx context.Context,
	fn func(ctx context.Context, store Storage) error) error {

	return s.txer.ExecTx(ctx, db.WriteTxOption(),
		func(store Storage) error {
			return fn(ctx, store)
		})
}

// WithReadTx executes the given function within a read-only transaction,
// giving a consistent snapshot across its queries.
func (s *SQLStore) WithReadTx(ctx context.Context,
	fn func(ctx context.Context, store Storage) error) error {

	return s.txer.ExecTx(ctx, db.ReadTxOption(),
		func(store Storage) error {
			return fn(ctx, store)
		})
}

// Conversion helpers between domain types and SQL null types. Timestamps are
// stored as unix seconds.

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullI64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func i64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	i := ni.Int64
	return &i
}

func nullF64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func f64Ptr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func unixPtr(ni sql.NullInt64) *time.Time {
	if !ni.Valid {
		return nil
	}
	t := time.Unix(ni.Int64, 0).UTC()
	return &t
}

// encodeJSON serializes a value for a TEXT column holding JSON. A nil value
// maps to SQL NULL.
func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode JSON "+
			"column: %w", err)
	}

	return sql.NullString{String: string(raw), Valid: true}, nil
}

// decodeJSON parses a JSON TEXT column into out. SQL NULL leaves out
// untouched.
func decodeJSON(ns sql.NullString, out any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}

	if err := json.Unmarshal([]byte(ns.String), out); err != nil {
		return fmt.Errorf("failed to decode JSON column: %w", err)
	}

	return nil
}

// mapRowErr converts sql.ErrNoRows into ErrNotFound and wraps everything
// else with the given operation name.
func mapRowErr(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// UserStore implementation.

const userColumns = `id, username, email, hashed_password, role, is_active,
	created_at`

func scanUser(row interface{ Scan(dest ...any) error }) (User, error) {
	var (
		u         User
		email     sql.NullString
		role      string
		createdAt int64
	)
	err := row.Scan(
		&u.ID, &u.Username, &email, &u.HashedPassword, &role,
		&u.IsActive, &createdAt,
	)
	if err != nil {
		return User{}, err
	}

	u.Email = strPtr(email)
	u.Role = amr.Role(role)
	u.CreatedAt = time.Unix(createdAt, 0).UTC()

	return u, nil
}

// CreateUser creates a new user in the database.
func (s *SQLStore) CreateUser(ctx context.Context,
	params CreateUserParams) (User, error) {

	now := time.Now().Unix()
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO users (username, email, hashed_password, role,
			is_active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)`,
		params.Username, nullStr(params.Email), params.HashedPassword,
		string(params.Role), now,
	)
	if err != nil {
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("failed to get user id: %w", err)
	}

	return s.GetUser(ctx, id)
}

// GetUser retrieves a user by its ID.
func (s *SQLStore) GetUser(ctx context.Context, id int64) (User, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	)

	u, err := scanUser(row)
	if err != nil {
		return User{}, mapRowErr(err, "get user")
	}
	return u, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLStore) GetUserByUsername(ctx context.Context,
	username string) (User, error) {

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE username = ?`, username,
	)

	u, err := scanUser(row)
	if err != nil {
		return User{}, mapRowErr(err, "get user by username")
	}
	return u, nil
}

// ListUsersByRole retrieves all users with the given global role.
func (s *SQLStore) ListUsersByRole(ctx context.Context,
	role amr.Role) ([]User, error) {

	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE role = ?
		ORDER BY id`, string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// SetUserRole updates a user's global role and active flag.
func (s *SQLStore) SetUserRole(ctx context.Context, id int64, role amr.Role,
	isActive bool) (User, error) {

	res, err := s.conn.ExecContext(ctx, `
		UPDATE users SET role = ?, is_active = ? WHERE id = ?`,
		string(role), isActive, id,
	)
	if err != nil {
		return User{}, fmt.Errorf("failed to update user role: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return User{}, ErrNotFound
	}

	return s.GetUser(ctx, id)
}

// UpsertUserProfile creates or replaces the profile for a user.
func (s *SQLStore) UpsertUserProfile(ctx context.Context,
	params UpsertUserProfileParams) (UserProfile, error) {

	skills, err := encodeJSON(params.Skills)
	if err != nil {
		return UserProfile{}, err
	}
	if !skills.Valid {
		skills = sql.NullString{String: "[]", Valid: true}
	}

	now := time.Now().Unix()
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, skills, is_active,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			skills = excluded.skills,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		params.UserID, skills.String, params.IsActive, now, now,
	)
	if err != nil {
		return UserProfile{}, fmt.Errorf("failed to upsert user "+
			"profile: %w", err)
	}

	return s.GetUserProfile(ctx, params.UserID)
}

func scanProfile(row interface{ Scan(dest ...any) error }) (UserProfile,
	error) {

	var (
		p                    UserProfile
		skills               sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&p.ID, &p.UserID, &skills, &p.IsActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return UserProfile{}, err
	}

	if err := decodeJSON(skills, &p.Skills); err != nil {
		return UserProfile{}, err
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return p, nil
}

// GetUserProfile retrieves the profile for a user.
func (s *SQLStore) GetUserProfile(ctx context.Context,
	userID int64) (UserProfile, error) {

	row := s.conn.QueryRowContext(ctx, `
		SELECT id, user_id, skills, is_active, created_at, updated_at
		FROM user_profiles WHERE user_id = ?`, userID,
	)

	p, err := scanProfile(row)
	if err != nil {
		return UserProfile{}, mapRowErr(err, "get user profile")
	}
	return p, nil
}

// GetUserProfiles retrieves the profiles for a set of users.
func (s *SQLStore) GetUserProfiles(ctx context.Context,
	userIDs []int64) ([]UserProfile, error) {

	if len(userIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(
		strings.Repeat("?,", len(userIDs)), ",",
	)
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, user_id, skills, is_active, created_at, updated_at
		FROM user_profiles WHERE user_id IN (`+placeholders+`)
		ORDER BY user_id`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user profiles: %w", err)
	}
	defer rows.Close()

	var profiles []UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user "+
				"profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

// ProjectStore implementation.

const projectColumns = `id, name, language, amr_version, role_set_version,
	validation_rule_version, version_tag, description, created_at,
	updated_at`

func scanProject(row interface{ Scan(dest ...any) error }) (Project, error) {
	var (
		p                    Project
		description          sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Language, &p.AmrVersion, &p.RoleSetVersion,
		&p.ValidationRuleVersion, &p.VersionTag, &description,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return Project{}, err
	}

	p.Description = strPtr(description)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return p, nil
}

// CreateProject creates a new project.
func (s *SQLStore) CreateProject(ctx context.Context,
	params CreateProjectParams) (Project, error) {

	now := time.Now().Unix()
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO projects (name, language, amr_version,
			role_set_version, validation_rule_version, version_tag,
			description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		params.Name, params.Language, params.AmrVersion,
		params.RoleSetVersion, params.ValidationRuleVersion,
		params.VersionTag, nullStr(params.Description), now, now,
	)
	if err != nil {
		return Project{}, fmt.Errorf("failed to create project: %w",
			err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Project{}, fmt.Errorf("failed to get project id: %w",
			err)
	}

	return s.GetProject(ctx, id)
}

// GetProject retrieves a project by its ID.
func (s *SQLStore) GetProject(ctx context.Context, id int64) (Project, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE id = ?`, id,
	)

	p, err := scanProject(row)
	if err != nil {
		return Project{}, mapRowErr(err, "get project")
	}
	return p, nil
}

// ListProjects retrieves all projects ordered by ID.
func (s *SQLStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+projectColumns+` FROM projects ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w",
				err)
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

// CountSentencesByStatus returns per-status sentence counts for a project.
func (s *SQLStore) CountSentencesByStatus(ctx context.Context,
	projectID int64) (map[amr.SentenceStatus]int64, error) {

	rows, err := s.conn.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM sentences
		WHERE project_id = ? GROUP BY status`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count sentences: %w", err)
	}
	defer rows.Close()

	counts := make(map[amr.SentenceStatus]int64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan sentence "+
				"count: %w", err)
		}
		counts[amr.SentenceStatus(status)] = count
	}

	return counts, rows.Err()
}

// CountMembershipsByRole returns per-role counts of active approved
// memberships for a project.
func (s *SQLStore) CountMembershipsByRole(ctx context.Context,
	projectID int64) (map[amr.Role]int64, error) {

	rows, err := s.conn.QueryContext(ctx, `
		SELECT role, COUNT(*) FROM project_memberships
		WHERE project_id = ? AND is_active = 1
			AND approved_at IS NOT NULL
		GROUP BY role`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count memberships: %w", err)
	}
	defer rows.Close()

	counts := make(map[amr.Role]int64)
	for rows.Next() {
		var (
			role  string
			count int64
		)
		if err := rows.Scan(&role, &count); err != nil {
			return nil, fmt.Errorf("failed to scan membership "+
				"count: %w", err)
		}
		counts[amr.Role(role)] = count
	}

	return counts, rows.Err()
}

const membershipColumns = `id, user_id, project_id, role, is_active,
	approved_at, created_at`

func scanMembership(
	row interface{ Scan(dest ...any) error }) (ProjectMembership, error) {

	var (
		m          ProjectMembership
		role       string
		approvedAt sql.NullInt64
		createdAt  int64
	)
	err := row.Scan(
		&m.ID, &m.UserID, &m.ProjectID, &role, &m.IsActive,
		&approvedAt, &createdAt,
	)
	if err != nil {
		return ProjectMembership{}, err
	}

	m.Role = amr.Role(role)
	m.ApprovedAt = unixPtr(approvedAt)
	m.CreatedAt = time.Unix(createdAt, 0).UTC()

	return m, nil
}

// CreateMembership creates a new project membership, initially inactive and
// unapproved.
func (s *SQLStore) CreateMembership(ctx context.Context,
	params CreateMembershipParams) (ProjectMembership, error) {

	now := time.Now().Unix()
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO project_memberships (user_id, project_id, role,
			is_active, approved_at, created_at)
		VALUES (?, ?, ?, 0, NULL, ?)`,
		params.UserID, params.ProjectID, string(params.Role), now,
	)
	if err != nil {
		return ProjectMembership{}, fmt.Errorf("failed to create "+
			"membership: %w", err)
	}

	return s.GetMembership(ctx, params.UserID, params.ProjectID)
}

// GetMembership retrieves the membership of a user in a project.
func (s *SQLStore) GetMembership(ctx context.Context, userID,
	projectID int64) (ProjectMembership, error) {

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+membershipColumns+` FROM project_memberships
		WHERE user_id = ? AND project_id = ?`, userID, projectID,
	)

	m, err := scanMembership(row)
	if err != nil {
		return ProjectMembership{}, mapRowErr(err, "get membership")
	}
	return m, nil
}

// ApproveMembership marks a membership active with the given approval time.
func (s *SQLStore) ApproveMembership(ctx context.Context, id int64,
	approvedAt time.Time) (ProjectMembership, error) {

	res, err := s.conn.ExecContext(ctx, `
		UPDATE project_memberships
		SET is_active = 1, approved_at = ?
		WHERE id = ?`, approvedAt.Unix(), id,
	)
	if err != nil {
		return ProjectMembership{}, fmt.Errorf("failed to approve "+
			"membership: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ProjectMembership{}, ErrNotFound
	}

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+membershipColumns+` FROM project_memberships
		WHERE id = ?`, id,
	)

	m, err := scanMembership(row)
	if err != nil {
		return ProjectMembership{}, mapRowErr(err, "get membership")
	}
	return m, nil
}

// UpdateMembership changes a membership's role or active flag. Nil fields
// keep their current value.
func (s *SQLStore) UpdateMembership(ctx context.Context,
	params UpdateMembershipParams) (ProjectMembership, error) {

	var approvedAt *int64
	if params.ApprovedAt != nil {
		unix := params.ApprovedAt.Unix()
		approvedAt = &unix
	}

	var role *string
	if params.Role != nil {
		r := string(*params.Role)
		role = &r
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE project_memberships
		SET role = COALESCE(?, role),
		    is_active = COALESCE(?, is_active),
		    approved_at = COALESCE(?, approved_at)
		WHERE id = ?`,
		role, boolPtrToInt(params.IsActive), approvedAt, params.ID,
	)
	if err != nil {
		return ProjectMembership{}, fmt.Errorf("failed to update "+
			"membership: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ProjectMembership{}, ErrNotFound
	}

	row := s.conn.QueryRowContext(ctx, `
		SELECT `+membershipColumns+` FROM project_memberships
		WHERE id = ?`, params.ID,
	)

	m, err := scanMembership(row)
	if err != nil {
		return ProjectMembership{}, mapRowErr(err, "get membership")
	}
	return m, nil
}

func boolPtrToInt(b *bool) *int64 {
	if b == nil {
		return nil
	}
	var v int64
	if *b {
		v = 1
	}
	return &v
}

// ListMemberships retrieves all memberships of a project.
func (s *SQLStore) ListMemberships(ctx context.Context,
	projectID int64) ([]ProjectMembership, error) {

	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+membershipColumns+` FROM project_memberships
		WHERE project_id = ? ORDER BY id`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []ProjectMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan "+
				"membership: %w", err)
		}
		memberships = append(memberships, m)
	}

	return memberships, rows.Err()
}

// ListEligibleMembers returns the user ids with an active approved
// membership of the given role.
func (s *SQLStore) ListEligibleMembers(ctx context.Context, projectID int64,
	role amr.Role) ([]int64, error) {

	rows, err := s.conn.QueryContext(ctx, `
		SELECT user_id FROM project_memberships
		WHERE project_id = ? AND role = ? AND is_active = 1
			AND approved_at IS NOT NULL
		ORDER BY user_id`, projectID, string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible members: %w",
			err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w",
				err)
		}
		userIDs = append(userIDs, id)
	}

	return userIDs, rows.Err()
}
