// Package models contains the persistent entities shared across the service.
package models

import "time"

// Role identifies what a user is allowed to do on the platform.
type Role string

const (
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleInstructor || r == RoleStudent
}

// User is a platform account. PasswordHash holds the encoded PBKDF2 digest,
// never the raw password.
type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DateOfBirth  time.Time `json:"dateOfBirth"`
	MobileNumber string    `json:"mobileNumber"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Course aggregates lectures owned by an instructor. Duration is the running
// sum of lecture durations in seconds and LecturesCount the number of
// lectures; both are zero or both are positive, and they are mutated only by
// the row-locked aggregate update applied when a lecture lands.
type Course struct {
	ID            string    `json:"id"`
	InstructorID  string    `json:"instructorId"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Duration      float64   `json:"duration"`
	LecturesCount int       `json:"lecturesCount"`
	Premium       bool      `json:"premium"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Lecture is a processed video belonging to a course. AssetID and PlaybackID
// identify the remote asset; PlaybackURL is the resolved viewer-facing URL.
// Lectures are created once and never mutated afterwards.
type Lecture struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"courseId"`
	AssetID     string    `json:"assetId"`
	PlaybackID  string    `json:"playbackId"`
	PlaybackURL string    `json:"playbackUrl"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Duration    float64   `json:"duration"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Subscription links a student to a course. A student subscribes to a course
// at most once.
type Subscription struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	CourseID  string    `json:"courseId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Page is a paginated slice of results.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Pages int `json:"pages"`
}

// NewPage assembles a Page, deriving the page count from total and size.
func NewPage[T any](items []T, total, page, size int) Page[T] {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: page, Size: size, Pages: pages}
}
