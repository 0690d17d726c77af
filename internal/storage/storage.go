// Package storage defines the persistence boundary for courses, lectures,
// users, and subscriptions, with Postgres and in-memory drivers.
package storage

import (
	"context"
	"strings"
	"time"
	"unicode"

	"coursecast/internal/apperr"
	"coursecast/internal/models"
)

const (
	// DefaultPageSize is applied when a caller asks for an out-of-range
	// page size.
	DefaultPageSize = 10
	// MaxPageSize caps how many rows a single page may return.
	MaxPageSize = 100
)

// CreateUserParams carries the fields required to register an account. The
// raw password is hashed before it ever reaches a driver.
type CreateUserParams struct {
	FirstName    string
	LastName     string
	Email        string
	Password     string
	DateOfBirth  time.Time
	MobileNumber string
	Role         models.Role
}

// CreateCourseParams carries the fields for a new, empty course.
type CreateCourseParams struct {
	InstructorID string
	Title        string
	Description  string
	Premium      bool
}

// CreateLectureParams carries the fields for a processed lecture row.
type CreateLectureParams struct {
	CourseID    string
	AssetID     string
	PlaybackID  string
	PlaybackURL string
	Title       string
	Description string
	Category    string
	Subcategory string
	Duration    float64
}

// Repository is the persistence contract consumed by the ingestion workflow
// and the HTTP handlers. Implementations return apperr-classified errors so
// callers can propagate them unchanged.
type Repository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)

	CreateCourse(ctx context.Context, params CreateCourseParams) (models.Course, error)
	GetCourse(ctx context.Context, id string) (models.Course, error)
	ListCourses(ctx context.Context, page, size int) ([]models.Course, int, error)

	CreateLecture(ctx context.Context, params CreateLectureParams) (models.Lecture, error)
	ListLectures(ctx context.Context, courseID string) ([]models.Lecture, error)

	// ApplyLectureAdded adds the lecture's duration to the course's running
	// total and increments its lecture count inside a critical section
	// scoped to the single course row.
	ApplyLectureAdded(ctx context.Context, courseID string, duration float64) (models.Course, error)

	CreateSubscription(ctx context.Context, studentID, courseID string) (models.Subscription, error)
	ListSubscribedCourses(ctx context.Context, studentID string, page, size int) ([]models.Course, int, error)
	IsSubscribed(ctx context.Context, studentID, courseID string) (bool, error)

	Close(ctx context.Context) error
}

// NormalizePage clamps pagination parameters to their valid ranges.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return page, size
}

// ValidatePassword enforces the account password policy.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return apperr.New(apperr.BadRequest, "password must be at least 8 characters")
	}
	hasDigit := false
	hasUpper := false
	for _, r := range password {
		if unicode.IsDigit(r) {
			hasDigit = true
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	if !hasDigit {
		return apperr.New(apperr.BadRequest, "password must contain at least one digit")
	}
	if !hasUpper {
		return apperr.New(apperr.BadRequest, "password must contain at least one uppercase letter")
	}
	return nil
}

func validateCreateUser(params CreateUserParams) error {
	if strings.TrimSpace(params.FirstName) == "" || strings.TrimSpace(params.LastName) == "" {
		return apperr.New(apperr.BadRequest, "first and last name are required")
	}
	if strings.TrimSpace(params.Email) == "" || !strings.Contains(params.Email, "@") {
		return apperr.New(apperr.BadRequest, "a valid email is required")
	}
	if len(strings.TrimSpace(params.MobileNumber)) < 10 {
		return apperr.New(apperr.BadRequest, "a valid mobile number is required")
	}
	if !params.Role.Valid() {
		return apperr.Newf(apperr.BadRequest, "role must be %q or %q", models.RoleInstructor, models.RoleStudent)
	}
	if params.DateOfBirth.IsZero() {
		return apperr.New(apperr.BadRequest, "date of birth is required")
	}
	return ValidatePassword(params.Password)
}

func validateCreateCourse(params CreateCourseParams) error {
	if strings.TrimSpace(params.Title) == "" {
		return apperr.New(apperr.BadRequest, "course title is required")
	}
	if strings.TrimSpace(params.Description) == "" {
		return apperr.New(apperr.BadRequest, "course description is required")
	}
	return nil
}

func validateCreateLecture(params CreateLectureParams) error {
	switch {
	case strings.TrimSpace(params.CourseID) == "":
		return apperr.New(apperr.BadRequest, "course id is required")
	case strings.TrimSpace(params.AssetID) == "":
		return apperr.New(apperr.BadRequest, "asset id is required")
	case strings.TrimSpace(params.PlaybackID) == "":
		return apperr.New(apperr.BadRequest, "playback id is required")
	case strings.TrimSpace(params.PlaybackURL) == "":
		return apperr.New(apperr.BadRequest, "playback url is required")
	case strings.TrimSpace(params.Title) == "":
		return apperr.New(apperr.BadRequest, "lecture title is required")
	case strings.TrimSpace(params.Description) == "":
		return apperr.New(apperr.BadRequest, "lecture description is required")
	case strings.TrimSpace(params.Category) == "":
		return apperr.New(apperr.BadRequest, "lecture category is required")
	case strings.TrimSpace(params.Subcategory) == "":
		return apperr.New(apperr.BadRequest, "lecture subcategory is required")
	case params.Duration <= 0:
		return apperr.New(apperr.BadRequest, "lecture duration must be positive")
	}
	return nil
}

func errCourseNotFound(id string) error {
	return apperr.Newf(apperr.NotFound, "course %s not found", id)
}

func errUserNotFound(id string) error {
	return apperr.Newf(apperr.NotFound, "user %s not found", id)
}
