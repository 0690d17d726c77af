package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"coursecast/internal/auth"
	"coursecast/internal/ingestion"
	"coursecast/internal/media"
	"coursecast/internal/models"
	"coursecast/internal/storage"
)

type stubMedia struct {
	mu    sync.Mutex
	slots int
}

func (s *stubMedia) CreateUploadSlot(ctx context.Context, premium bool) (media.UploadSlot, error) {
	s.mu.Lock()
	s.slots++
	slot := s.slots
	s.mu.Unlock()
	return media.UploadSlot{
		ID:  fmt.Sprintf("upload-%d", slot),
		URL: fmt.Sprintf("https://upload.example.com/upload-%d", slot),
	}, nil
}

func (s *stubMedia) TransferBytes(ctx context.Context, uploadURL string, content []byte, contentType string) error {
	return nil
}

func (s *stubMedia) AwaitProcessing(ctx context.Context, uploadID string) (media.Asset, error) {
	suffix := strings.TrimPrefix(uploadID, "upload-")
	return media.Asset{
		ID:         "asset-" + suffix,
		PlaybackID: "playback-" + suffix,
		Duration:   90,
	}, nil
}

func (s *stubMedia) ResolvePlaybackURL(premium bool, playbackID string) (string, error) {
	return "https://player.example.com/" + playbackID, nil
}

func newTestHandler(t *testing.T) (*Handler, storage.Repository) {
	t.Helper()
	store := storage.NewMemoryRepository()
	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	workflow := ingestion.NewWorkflow(store, &stubMedia{}, nil)
	batch := ingestion.NewCoordinator(workflow, 2, nil)
	return NewHandler(store, tokens, workflow, batch, nil), store
}

func registerUser(t *testing.T, store storage.Repository, role models.Role) models.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), storage.CreateUserParams{
		FirstName:    "Test",
		LastName:     "User",
		Email:        fmt.Sprintf("user-%s-%d@example.com", role, time.Now().UnixNano()),
		Password:     "Sup3rSecret",
		DateOfBirth:  time.Date(1995, 4, 2, 0, 0, 0, 0, time.UTC),
		MobileNumber: fmt.Sprintf("07%09d", time.Now().UnixNano()%1_000_000_000),
		Role:         role,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func authedRequest(r *http.Request, user models.User) *http.Request {
	claims := auth.Claims{UserID: user.ID, Role: user.Role}
	return r.WithContext(ContextWithClaims(r.Context(), claims))
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func errorMessage(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	decodeBody(t, recorder, &payload)
	return payload["message"]
}

func TestRegisterAndLogin(t *testing.T) {
	handler, _ := newTestHandler(t)

	body := `{"firstName":"Grace","lastName":"Hopper","email":"grace@example.com",` +
		`"password":"Sup3rSecret","dateOfBirth":"1985-06-01","mobileNumber":"0712345678","role":"instructor"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.HandleRegister(recorder, req)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var issued struct {
		AccessToken string `json:"accessToken"`
		TokenType   string `json:"tokenType"`
		FirstName   string `json:"firstName"`
	}
	decodeBody(t, recorder, &issued)
	if issued.AccessToken == "" || issued.TokenType != "bearer" || issued.FirstName != "Grace" {
		t.Fatalf("unexpected token response %+v", issued)
	}
	claims, err := handler.Tokens.Verify(issued.AccessToken)
	if err != nil || claims.Role != models.RoleInstructor {
		t.Fatalf("issued token did not verify: %v %+v", err, claims)
	}

	login := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"grace@example.com","password":"Sup3rSecret"}`))
	recorder = httptest.NewRecorder()
	handler.HandleLogin(recorder, login)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 login, got %d: %s", recorder.Code, recorder.Body.String())
	}

	badLogin := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"grace@example.com","password":"WrongPass1"}`))
	recorder = httptest.NewRecorder()
	handler.HandleLogin(recorder, badLogin)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong credentials, got %d", recorder.Code)
	}
	if errorMessage(t, recorder) != "invalid email or password" {
		t.Fatalf("unexpected login error body: %s", recorder.Body.String())
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	handler, _ := newTestHandler(t)

	body := `{"firstName":"Grace","lastName":"Hopper","email":"grace@example.com",` +
		`"password":"weak","dateOfBirth":"1985-06-01","mobileNumber":"0712345678","role":"student"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.HandleRegister(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if !strings.Contains(errorMessage(t, recorder), "password") {
		t.Fatalf("expected password message, got %s", recorder.Body.String())
	}
}

func TestCreateCourseRequiresInstructor(t *testing.T) {
	handler, store := newTestHandler(t)
	student := registerUser(t, store, models.RoleStudent)
	instructor := registerUser(t, store, models.RoleInstructor)

	body := `{"title":"Go from scratch","description":"All of it","premium":false}`

	req := httptest.NewRequest(http.MethodPost, "/api/courses", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.HandleCourses(recorder, authedRequest(req, student))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for student, got %d", recorder.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/courses", strings.NewReader(body))
	recorder = httptest.NewRecorder()
	handler.HandleCourses(recorder, req)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without claims, got %d", recorder.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/courses", strings.NewReader(body))
	recorder = httptest.NewRecorder()
	handler.HandleCourses(recorder, authedRequest(req, instructor))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var course models.Course
	decodeBody(t, recorder, &course)
	if course.InstructorID != instructor.ID {
		t.Fatalf("expected instructor %s, got %s", instructor.ID, course.InstructorID)
	}
}

func TestListCoursesPaginated(t *testing.T) {
	handler, store := newTestHandler(t)
	instructor := registerUser(t, store, models.RoleInstructor)
	for i := 0; i < 3; i++ {
		if _, err := store.CreateCourse(context.Background(), storage.CreateCourseParams{
			InstructorID: instructor.ID,
			Title:        fmt.Sprintf("Course %d", i),
			Description:  "desc",
		}); err != nil {
			t.Fatalf("CreateCourse: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/courses?page=2&size=2", nil)
	recorder := httptest.NewRecorder()
	handler.HandleCourses(recorder, authedRequest(req, instructor))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var page models.Page[models.Course]
	decodeBody(t, recorder, &page)
	if page.Total != 3 || page.Pages != 2 || len(page.Items) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/courses?page=abc", nil)
	recorder = httptest.NewRecorder()
	handler.HandleCourses(recorder, authedRequest(req, instructor))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric page, got %d", recorder.Code)
	}
}

func videoPart(t *testing.T, writer *multipart.Writer, field, filename string) {
	t.Helper()
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", "video/mp4")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write([]byte("video bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
}

func TestUploadLectureMultipart(t *testing.T) {
	handler, store := newTestHandler(t)
	instructor := registerUser(t, store, models.RoleInstructor)
	course, err := store.CreateCourse(context.Background(), storage.CreateCourseParams{
		InstructorID: instructor.ID,
		Title:        "Go from scratch",
		Description:  "All of it",
	})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("course_id", course.ID)
	writer.WriteField("title", "Lecture 1")
	writer.WriteField("description", "Introduction")
	writer.WriteField("category", "engineering")
	writer.WriteField("subcategory", "golang")
	videoPart(t, writer, "lecture_file", "lecture1.mp4")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/lectures", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	recorder := httptest.NewRecorder()
	handler.HandleUploadLecture(recorder, authedRequest(req, instructor))

	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var lecture models.Lecture
	decodeBody(t, recorder, &lecture)
	if lecture.CourseID != course.ID || lecture.Duration != 90 {
		t.Fatalf("unexpected lecture %+v", lecture)
	}

	updated, err := store.GetCourse(context.Background(), course.ID)
	if err != nil {
		t.Fatalf("GetCourse: %v", err)
	}
	if updated.LecturesCount != 1 {
		t.Fatalf("expected course aggregates to update, got %+v", updated)
	}
}

func TestUploadBatchMetadataMismatch(t *testing.T) {
	handler, store := newTestHandler(t)
	instructor := registerUser(t, store, models.RoleInstructor)
	course, err := store.CreateCourse(context.Background(), storage.CreateCourseParams{
		InstructorID: instructor.ID,
		Title:        "Go from scratch",
		Description:  "All of it",
	})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("course_id", course.ID)
	writer.WriteField("metadata", `[{"title":"One","description":"d","category":"c","subcategory":"s"}]`)
	videoPart(t, writer, "lecture_files", "lecture1.mp4")
	videoPart(t, writer, "lecture_files", "lecture2.mp4")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/lectures/batch", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	recorder := httptest.NewRecorder()
	handler.HandleUploadBatch(recorder, authedRequest(req, instructor))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	message := errorMessage(t, recorder)
	if !strings.Contains(message, "2 files") || !strings.Contains(message, "1 metadata") {
		t.Fatalf("expected counts in message, got %q", message)
	}
}

func TestUploadBatchSucceeds(t *testing.T) {
	handler, store := newTestHandler(t)
	instructor := registerUser(t, store, models.RoleInstructor)
	course, err := store.CreateCourse(context.Background(), storage.CreateCourseParams{
		InstructorID: instructor.ID,
		Title:        "Go from scratch",
		Description:  "All of it",
	})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("course_id", course.ID)
	writer.WriteField("metadata",
		`[{"title":"One","description":"d","category":"c","subcategory":"s"},`+
			`{"title":"Two","description":"d","category":"c","subcategory":"s"}]`)
	videoPart(t, writer, "lecture_files", "lecture1.mp4")
	videoPart(t, writer, "lecture_files", "lecture2.mp4")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/lectures/batch", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	recorder := httptest.NewRecorder()
	handler.HandleUploadBatch(recorder, authedRequest(req, instructor))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var result ingestion.BatchResult
	decodeBody(t, recorder, &result)
	if result.TotalUploads != 2 || result.SuccessfulUploads != 2 || result.FailedUploads != 0 {
		t.Fatalf("unexpected batch result %+v", result)
	}
}

func TestSubscriptionFlow(t *testing.T) {
	handler, store := newTestHandler(t)
	instructor := registerUser(t, store, models.RoleInstructor)
	student := registerUser(t, store, models.RoleStudent)
	course, err := store.CreateCourse(context.Background(), storage.CreateCourseParams{
		InstructorID: instructor.ID,
		Title:        "Go from scratch",
		Description:  "All of it",
	})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}

	lecturesPath := "/api/subscriptions/courses/" + course.ID + "/lectures"
	req := httptest.NewRequest(http.MethodGet, lecturesPath, nil)
	recorder := httptest.NewRecorder()
	handler.HandleSubscribedLectures(recorder, authedRequest(req, student))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before subscribing, got %d", recorder.Code)
	}

	subscribeBody := fmt.Sprintf(`{"courseId":%q}`, course.ID)
	req = httptest.NewRequest(http.MethodPost, "/api/subscriptions", strings.NewReader(subscribeBody))
	recorder = httptest.NewRecorder()
	handler.HandleSubscribe(recorder, authedRequest(req, student))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/subscriptions", strings.NewReader(subscribeBody))
	recorder = httptest.NewRecorder()
	handler.HandleSubscribe(recorder, authedRequest(req, student))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate subscription, got %d", recorder.Code)
	}
	if errorMessage(t, recorder) != "you are already subscribed to this course" {
		t.Fatalf("unexpected duplicate message: %s", recorder.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/subscriptions", strings.NewReader(subscribeBody))
	recorder = httptest.NewRecorder()
	handler.HandleSubscribe(recorder, authedRequest(req, instructor))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for instructor subscribing, got %d", recorder.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/subscriptions/courses", nil)
	recorder = httptest.NewRecorder()
	handler.HandleSubscribedCourses(recorder, authedRequest(req, student))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var page models.Page[models.Course]
	decodeBody(t, recorder, &page)
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].ID != course.ID {
		t.Fatalf("unexpected subscribed page %+v", page)
	}

	req = httptest.NewRequest(http.MethodGet, lecturesPath, nil)
	recorder = httptest.NewRecorder()
	handler.HandleSubscribedLectures(recorder, authedRequest(req, student))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 after subscribing, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var lectures []models.Lecture
	decodeBody(t, recorder, &lectures)
	if len(lectures) != 0 {
		t.Fatalf("expected empty lecture list, got %d", len(lectures))
	}
}
