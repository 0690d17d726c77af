package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"coursecast/internal/apperr"
	"coursecast/internal/models"
)

// MemoryRepository keeps the full dataset in process memory. It backs local
// development and tests; production deployments use the Postgres driver.
type memoryRepository struct {
	mu            sync.RWMutex
	users         map[string]models.User
	usersByEmail  map[string]string
	courses       map[string]models.Course
	lectures      map[string]models.Lecture
	subscriptions map[string]models.Subscription
	subPairs      map[string]string
	now           func() time.Time
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		users:         make(map[string]models.User),
		usersByEmail:  make(map[string]string),
		courses:       make(map[string]models.Course),
		lectures:      make(map[string]models.Lecture),
		subscriptions: make(map[string]models.Subscription),
		subPairs:      make(map[string]string),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (m *memoryRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	if err := validateCreateUser(params); err != nil {
		return models.User{}, err
	}
	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, apperr.Wrap(apperr.Internal, err)
	}

	email := normalizeEmail(params.Email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usersByEmail[email]; exists {
		return models.User{}, apperr.New(apperr.BadRequest, "this user is already registered")
	}
	for _, user := range m.users {
		if user.MobileNumber == strings.TrimSpace(params.MobileNumber) {
			return models.User{}, apperr.New(apperr.BadRequest, "this user is already registered")
		}
	}

	now := m.now()
	user := models.User{
		ID:           uuid.NewString(),
		FirstName:    strings.TrimSpace(params.FirstName),
		LastName:     strings.TrimSpace(params.LastName),
		Email:        email,
		PasswordHash: hashed,
		DateOfBirth:  params.DateOfBirth,
		MobileNumber: strings.TrimSpace(params.MobileNumber),
		Role:         params.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[user.ID] = user
	m.usersByEmail[email] = user.ID
	return user, nil
}

func (m *memoryRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	if password == "" {
		return models.User{}, errInvalidCredentials
	}

	m.mu.RLock()
	id, ok := m.usersByEmail[normalizeEmail(email)]
	user := m.users[id]
	m.mu.RUnlock()

	if !ok {
		return models.User{}, errInvalidCredentials
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, errInvalidCredentials) {
			return models.User{}, errInvalidCredentials
		}
		return models.User{}, apperr.Wrap(apperr.Internal, err)
	}
	return user, nil
}

func (m *memoryRepository) GetUser(ctx context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return models.User{}, errUserNotFound(id)
	}
	return user, nil
}

func (m *memoryRepository) CreateCourse(ctx context.Context, params CreateCourseParams) (models.Course, error) {
	if err := validateCreateCourse(params); err != nil {
		return models.Course{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[params.InstructorID]; !ok {
		return models.Course{}, errUserNotFound(params.InstructorID)
	}

	now := m.now()
	course := models.Course{
		ID:           uuid.NewString(),
		InstructorID: params.InstructorID,
		Title:        strings.TrimSpace(params.Title),
		Description:  strings.TrimSpace(params.Description),
		Premium:      params.Premium,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.courses[course.ID] = course
	return course, nil
}

func (m *memoryRepository) GetCourse(ctx context.Context, id string) (models.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	course, ok := m.courses[id]
	if !ok {
		return models.Course{}, errCourseNotFound(id)
	}
	return course, nil
}

func (m *memoryRepository) ListCourses(ctx context.Context, page, size int) ([]models.Course, int, error) {
	page, size = NormalizePage(page, size)

	m.mu.RLock()
	courses := make([]models.Course, 0, len(m.courses))
	for _, course := range m.courses {
		courses = append(courses, course)
	}
	m.mu.RUnlock()

	sortCourses(courses)
	return paginateCourses(courses, page, size), len(courses), nil
}

func (m *memoryRepository) CreateLecture(ctx context.Context, params CreateLectureParams) (models.Lecture, error) {
	if err := validateCreateLecture(params); err != nil {
		return models.Lecture{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.courses[params.CourseID]; !ok {
		return models.Lecture{}, errCourseNotFound(params.CourseID)
	}
	for _, lecture := range m.lectures {
		if lecture.AssetID == params.AssetID || lecture.PlaybackID == params.PlaybackID {
			return models.Lecture{}, apperr.Newf(apperr.BadRequest, "asset %s is already attached to a lecture", params.AssetID)
		}
	}

	now := m.now()
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
	m.lectures[lecture.ID] = lecture
	return lecture, nil
}

func (m *memoryRepository) ListLectures(ctx context.Context, courseID string) ([]models.Lecture, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.courses[courseID]; !ok {
		return nil, errCourseNotFound(courseID)
	}
	lectures := make([]models.Lecture, 0)
	for _, lecture := range m.lectures {
		if lecture.CourseID == courseID {
			lectures = append(lectures, lecture)
		}
	}
	sort.Slice(lectures, func(i, j int) bool {
		if lectures[i].CreatedAt.Equal(lectures[j].CreatedAt) {
			return lectures[i].ID < lectures[j].ID
		}
		return lectures[i].CreatedAt.Before(lectures[j].CreatedAt)
	})
	return lectures, nil
}

// ApplyLectureAdded runs the read-modify-write under the repository mutex,
// which serializes concurrent aggregate updates the same way the Postgres
// driver's row lock does.
func (m *memoryRepository) ApplyLectureAdded(ctx context.Context, courseID string, duration float64) (models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	course, ok := m.courses[courseID]
	if !ok {
		return models.Course{}, errCourseNotFound(courseID)
	}
	course.Duration += duration
	course.LecturesCount++
	course.UpdatedAt = m.now()
	m.courses[courseID] = course
	return course, nil
}

func (m *memoryRepository) CreateSubscription(ctx context.Context, studentID, courseID string) (models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.courses[courseID]; !ok {
		return models.Subscription{}, errCourseNotFound(courseID)
	}
	pair := subscriptionKey(studentID, courseID)
	if _, exists := m.subPairs[pair]; exists {
		return models.Subscription{}, apperr.New(apperr.BadRequest, "you are already subscribed to this course")
	}

	subscription := models.Subscription{
		ID:        uuid.NewString(),
		StudentID: studentID,
		CourseID:  courseID,
		CreatedAt: m.now(),
	}
	m.subscriptions[subscription.ID] = subscription
	m.subPairs[pair] = subscription.ID
	return subscription, nil
}

func (m *memoryRepository) ListSubscribedCourses(ctx context.Context, studentID string, page, size int) ([]models.Course, int, error) {
	page, size = NormalizePage(page, size)

	m.mu.RLock()
	courses := make([]models.Course, 0)
	for _, subscription := range m.subscriptions {
		if subscription.StudentID != studentID {
			continue
		}
		if course, ok := m.courses[subscription.CourseID]; ok {
			courses = append(courses, course)
		}
	}
	m.mu.RUnlock()

	sortCourses(courses)
	return paginateCourses(courses, page, size), len(courses), nil
}

func (m *memoryRepository) IsSubscribed(ctx context.Context, studentID, courseID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.subPairs[subscriptionKey(studentID, courseID)]
	return ok, nil
}

func (m *memoryRepository) Close(ctx context.Context) error {
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func subscriptionKey(studentID, courseID string) string {
	return studentID + "/" + courseID
}

func sortCourses(courses []models.Course) {
	sort.Slice(courses, func(i, j int) bool {
		if courses[i].CreatedAt.Equal(courses[j].CreatedAt) {
			return courses[i].ID < courses[j].ID
		}
		return courses[i].CreatedAt.Before(courses[j].CreatedAt)
	})
}

func paginateCourses(courses []models.Course, page, size int) []models.Course {
	start := (page - 1) * size
	if start >= len(courses) {
		return []models.Course{}
	}
	end := start + size
	if end > len(courses) {
		end = len(courses)
	}
	return append([]models.Course(nil), courses[start:end]...)
}

var _ Repository = (*memoryRepository)(nil)
