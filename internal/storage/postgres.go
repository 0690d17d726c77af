package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"coursecast/internal/apperr"
	"coursecast/internal/models"
)

// PostgresConfig tunes the pgx connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
	ApplicationName string
}

// PostgresOption adjusts the pool configuration.
type PostgresOption func(*PostgresConfig)

// WithPoolLimits bounds the number of pooled connections.
func WithPoolLimits(max, min int32) PostgresOption {
	return func(cfg *PostgresConfig) {
		cfg.MaxConnections = max
		cfg.MinConnections = min
	}
}

// WithPoolDurations bounds connection lifetime and idle time.
func WithPoolDurations(lifetime, idle time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		cfg.MaxConnLifetime = lifetime
		cfg.MaxConnIdleTime = idle
	}
}

// WithConnectTimeout bounds how long establishing a connection may take.
func WithConnectTimeout(timeout time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		cfg.ConnectTimeout = timeout
	}
}

// WithApplicationName sets the application_name reported to Postgres.
func WithApplicationName(name string) PostgresOption {
	return func(cfg *PostgresConfig) {
		cfg.ApplicationName = name
	}
}

type postgresRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// schema migration.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...PostgresOption) (Repository, error) {
	cfg := PostgresConfig{DSN: strings.TrimSpace(dsn)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	if err := validateCreateUser(params); err != nil {
		return models.User{}, err
	}
	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, apperr.Wrap(apperr.Internal, err)
	}

	now := r.now()
	user := models.User{
		ID:           uuid.NewString(),
		FirstName:    strings.TrimSpace(params.FirstName),
		LastName:     strings.TrimSpace(params.LastName),
		Email:        normalizeEmail(params.Email),
		PasswordHash: hashed,
		DateOfBirth:  params.DateOfBirth,
		MobileNumber: strings.TrimSpace(params.MobileNumber),
		Role:         params.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO users (id, first_name, last_name, email, password_hash, date_of_birth, mobile_number, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.FirstName, user.LastName, user.Email, user.PasswordHash,
		user.DateOfBirth, user.MobileNumber, string(user.Role), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, apperr.New(apperr.BadRequest, "this user is already registered")
		}
		return models.User{}, apperr.Wrapf(apperr.Internal, err, "insert user")
	}
	return user, nil
}

func (r *postgresRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	if password == "" {
		return models.User{}, errInvalidCredentials
	}
	row := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, password_hash, date_of_birth, mobile_number, role, created_at, updated_at
		FROM users WHERE email = $1`, normalizeEmail(email))
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, errInvalidCredentials
		}
		return models.User{}, apperr.Wrapf(apperr.Internal, err, "select user by email")
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, errInvalidCredentials) {
			return models.User{}, errInvalidCredentials
		}
		return models.User{}, apperr.Wrap(apperr.Internal, err)
	}
	return user, nil
}

func (r *postgresRepository) GetUser(ctx context.Context, id string) (models.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, password_hash, date_of_birth, mobile_number, role, created_at, updated_at
		FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, errUserNotFound(id)
		}
		return models.User{}, apperr.Wrapf(apperr.Internal, err, "select user")
	}
	return user, nil
}

func (r *postgresRepository) CreateCourse(ctx context.Context, params CreateCourseParams) (models.Course, error) {
	if err := validateCreateCourse(params); err != nil {
		return models.Course{}, err
	}
	if _, err := r.GetUser(ctx, params.InstructorID); err != nil {
		return models.Course{}, err
	}

	now := r.now()
	course := models.Course{
		ID:           uuid.NewString(),
		InstructorID: params.InstructorID,
		Title:        strings.TrimSpace(params.Title),
		Description:  strings.TrimSpace(params.Description),
		Premium:      params.Premium,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO courses (id, instructor_id, title, description, duration, lectures_count, premium, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5, $6, $7)`,
		course.ID, course.InstructorID, course.Title, course.Description, course.Premium, course.CreatedAt, course.UpdatedAt)
	if err != nil {
		return models.Course{}, apperr.Wrapf(apperr.Internal, err, "insert course")
	}
	return course, nil
}

func (r *postgresRepository) GetCourse(ctx context.Context, id string) (models.Course, error) {
	row := r.pool.QueryRow(ctx, selectCourse+` WHERE id = $1`, id)
	course, err := scanCourse(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Course{}, errCourseNotFound(id)
		}
		return models.Course{}, apperr.Wrapf(apperr.Internal, err, "select course")
	}
	return course, nil
}

func (r *postgresRepository) ListCourses(ctx context.Context, page, size int) ([]models.Course, int, error) {
	page, size = NormalizePage(page, size)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM courses`).Scan(&total); err != nil {
		return nil, 0, apperr.Wrapf(apperr.Internal, err, "count courses")
	}

	rows, err := r.pool.Query(ctx, selectCourse+`
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`, size, (page-1)*size)
	if err != nil {
		return nil, 0, apperr.Wrapf(apperr.Internal, err, "list courses")
	}
	defer rows.Close()

	courses, err := collectCourses(rows)
	if err != nil {
		return nil, 0, err
	}
	return courses, total, nil
}

func (r *postgresRepository) CreateLecture(ctx context.Context, params CreateLectureParams) (models.Lecture, error) {
	if err := validateCreateLecture(params); err != nil {
		return models.Lecture{}, err
	}

	now := r.now()
	lecture := models.Lecture{
		ID:          uuid.NewString(),
		CourseID:    params.CourseID,
		AssetID:     params.AssetID,
		PlaybackID:  params.PlaybackID,
		PlaybackURL: params.PlaybackURL,
		Title:       strings.TrimSpace(params.Title),
		Description: strings.TrimSpace(params.Description),
		Duration:    params.Duration,
		Category:    strings.TrimSpace(params.Category),
		Subcategory: strings.TrimSpace(params.Subcategory),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lectures (id, course_id, asset_id, playback_id, playback_url, title, description, duration, category, subcategory, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		lecture.ID, lecture.CourseID, lecture.AssetID, lecture.PlaybackID, lecture.PlaybackURL,
		lecture.Title, lecture.Description, lecture.Duration, lecture.Category, lecture.Subcategory,
		lecture.CreatedAt, lecture.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.Lecture{}, errCourseNotFound(params.CourseID)
		}
		if isUniqueViolation(err) {
			return models.Lecture{}, apperr.Newf(apperr.BadRequest, "asset %s is already attached to a lecture", params.AssetID)
		}
		return models.Lecture{}, apperr.Wrapf(apperr.Internal, err, "insert lecture")
	}
	return lecture, nil
}

func (r *postgresRepository) ListLectures(ctx context.Context, courseID string) ([]models.Lecture, error) {
	if _, err := r.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, course_id, asset_id, playback_id, playback_url, title, description, duration, category, subcategory, created_at, updated_at
		FROM lectures WHERE course_id = $1
		ORDER BY created_at, id`, courseID)
	if err != nil {
		return nil, apperr.Wrapf(apperr.Internal, err, "list lectures")
	}
	defer rows.Close()

	lectures := make([]models.Lecture, 0)
	for rows.Next() {
		var lecture models.Lecture
		if err := rows.Scan(
			&lecture.ID, &lecture.CourseID, &lecture.AssetID, &lecture.PlaybackID, &lecture.PlaybackURL,
			&lecture.Title, &lecture.Description, &lecture.Duration, &lecture.Category, &lecture.Subcategory,
			&lecture.CreatedAt, &lecture.UpdatedAt,
		); err != nil {
			return nil, apperr.Wrapf(apperr.Internal, err, "scan lecture")
		}
		lectures = append(lectures, lecture)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrapf(apperr.Internal, err, "iterate lectures")
	}
	return lectures, nil
}

// ApplyLectureAdded locks the course row for the duration of the
// read-modify-write so concurrent uploads to the same course cannot lose an
// update.
func (r *postgresRepository) ApplyLectureAdded(ctx context.Context, courseID string, duration float64) (models.Course, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Course{}, apperr.Wrapf(apperr.Internal, err, "begin aggregate update")
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, selectCourse+` WHERE id = $1 FOR UPDATE`, courseID)
	course, err := scanCourse(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Course{}, errCourseNotFound(courseID)
		}
		return models.Course{}, apperr.Wrapf(apperr.Internal, err, "lock course row")
	}

	course.Duration += duration
	course.LecturesCount++
	course.UpdatedAt = r.now()

	if _, err := tx.Exec(ctx, `
		UPDATE courses SET duration = $2, lectures_count = $3, updated_at = $4 WHERE id = $1`,
		course.ID, course.Duration, course.LecturesCount, course.UpdatedAt); err != nil {
		return models.Course{}, apperr.Wrapf(apperr.Internal, err, "update course aggregates")
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Course{}, apperr.Wrapf(apperr.Internal, err, "commit aggregate update")
	}
	return course, nil
}

func (r *postgresRepository) CreateSubscription(ctx context.Context, studentID, courseID string) (models.Subscription, error) {
	if _, err := r.GetCourse(ctx, courseID); err != nil {
		return models.Subscription{}, err
	}

	subscription := models.Subscription{
		ID:        uuid.NewString(),
		StudentID: studentID,
		CourseID:  courseID,
		CreatedAt: r.now(),
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, student_id, course_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		subscription.ID, subscription.StudentID, subscription.CourseID, subscription.CreatedAt)
	if err != nil {
		// The unique pair constraint doubles as the race backstop when two
		// subscribe requests arrive together.
		if isUniqueViolation(err) {
			return models.Subscription{}, apperr.New(apperr.BadRequest, "you are already subscribed to this course")
		}
		if isForeignKeyViolation(err) {
			return models.Subscription{}, errCourseNotFound(courseID)
		}
		return models.Subscription{}, apperr.Wrapf(apperr.Internal, err, "insert subscription")
	}
	return subscription, nil
}

func (r *postgresRepository) ListSubscribedCourses(ctx context.Context, studentID string, page, size int) ([]models.Course, int, error) {
	page, size = NormalizePage(page, size)

	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM subscriptions WHERE student_id = $1`, studentID).Scan(&total); err != nil {
		return nil, 0, apperr.Wrapf(apperr.Internal, err, "count subscriptions")
	}

	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.instructor_id, c.title, c.description, c.duration, c.lectures_count, c.premium, c.created_at, c.updated_at
		FROM courses c
		JOIN subscriptions s ON s.course_id = c.id
		WHERE s.student_id = $1
		ORDER BY c.created_at, c.id
		LIMIT $2 OFFSET $3`, studentID, size, (page-1)*size)
	if err != nil {
		return nil, 0, apperr.Wrapf(apperr.Internal, err, "list subscribed courses")
	}
	defer rows.Close()

	courses, err := collectCourses(rows)
	if err != nil {
		return nil, 0, err
	}
	return courses, total, nil
}

func (r *postgresRepository) IsSubscribed(ctx context.Context, studentID, courseID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM subscriptions WHERE student_id = $1 AND course_id = $2)`,
		studentID, courseID).Scan(&exists)
	if err != nil {
		return false, apperr.Wrapf(apperr.Internal, err, "check subscription")
	}
	return exists, nil
}

const selectCourse = `
	SELECT id, instructor_id, title, description, duration, lectures_count, premium, created_at, updated_at
	FROM courses`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (models.Course, error) {
	var course models.Course
	err := row.Scan(
		&course.ID, &course.InstructorID, &course.Title, &course.Description,
		&course.Duration, &course.LecturesCount, &course.Premium,
		&course.CreatedAt, &course.UpdatedAt,
	)
	return course, err
}

func scanUser(row rowScanner) (models.User, error) {
	var user models.User
	var role string
	err := row.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.PasswordHash,
		&user.DateOfBirth, &user.MobileNumber, &role, &user.CreatedAt, &user.UpdatedAt,
	)
	user.Role = models.Role(role)
	return user, err
}

func collectCourses(rows pgx.Rows) ([]models.Course, error) {
	courses := make([]models.Course, 0)
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, apperr.Wrapf(apperr.Internal, err, "scan course")
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrapf(apperr.Internal, err, "iterate courses")
	}
	return courses, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ Repository = (*postgresRepository)(nil)
