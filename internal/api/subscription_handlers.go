package api

import (
	"net/http"
	"strings"

	"coursecast/internal/apperr"
	"coursecast/internal/models"
)

type subscribeRequest struct {
	CourseID string `json:"courseId"`
}

// HandleSubscribe enrols the authenticated student in a course.
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, apperr.New(apperr.BadRequest, "method not allowed"))
		return
	}
	claims, ok := h.requireRole(w, r, models.RoleStudent)
	if !ok {
		return
	}
	var payload subscribeRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(payload.CourseID) == "" {
		writeError(w, apperr.New(apperr.BadRequest, "course id is required"))
		return
	}

	subscription, err := h.Store.CreateSubscription(r.Context(), claims.UserID, payload.CourseID)
	if err != nil {
		writeError(w, apperr.Internalize(err))
		return
	}

	h.Logger.Info("subscription created", "student_id", claims.UserID, "course_id", payload.CourseID)
	writeJSON(w, http.StatusCreated, subscription)
}

// HandleSubscribedCourses lists the courses the authenticated student is
// enrolled in.
func (h *Handler) HandleSubscribedCourses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, apperr.New(apperr.BadRequest, "method not allowed"))
		return
	}
	claims, ok := h.requireRole(w, r, models.RoleStudent)
	if !ok {
		return
	}
	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	courses, total, err := h.Store.ListSubscribedCourses(r.Context(), claims.UserID, page, size)
	if err != nil {
		writeError(w, apperr.Internalize(err))
		return
	}
	writeJSON(w, http.StatusOK, models.NewPage(courses, total, page, size))
}

// HandleSubscribedLectures lists the lectures of a course the student is
// subscribed to. Path shape: /api/subscriptions/courses/{id}/lectures.
func (h *Handler) HandleSubscribedLectures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, apperr.New(apperr.BadRequest, "method not allowed"))
		return
	}
	claims, ok := h.requireRole(w, r, models.RoleStudent)
	if !ok {
		return
	}
	courseID := lectureCourseID(r.URL.Path)
	if courseID == "" {
		writeError(w, apperr.New(apperr.NotFound, "course not found"))
		return
	}

	subscribed, err := h.Store.IsSubscribed(r.Context(), claims.UserID, courseID)
	if err != nil {
		writeError(w, apperr.Internalize(err))
		return
	}
	if !subscribed {
		writeError(w, apperr.New(apperr.PermissionDenied, "you are not subscribed to this course"))
		return
	}

	lectures, err := h.Store.ListLectures(r.Context(), courseID)
	if err != nil {
		writeError(w, apperr.Internalize(err))
		return
	}
	writeJSON(w, http.StatusOK, lectures)
}

func lectureCourseID(path string) string {
	const prefix = "/api/subscriptions/courses/"
	rest := strings.TrimPrefix(path, prefix)
	if rest == path {
		return ""
	}
	courseID, tail, found := strings.Cut(rest, "/")
	if !found || tail != "lectures" {
		return ""
	}
	return strings.TrimSpace(courseID)
}
