package api

import (
	"net/http"

	"coursecast/internal/apperr"
	"coursecast/internal/models"
	"coursecast/internal/storage"
)

type createCourseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Premium     bool   `json:"premium"`
}

// HandleCourses dispatches /api/courses by method: instructors create,
// any authenticated user lists.
func (h *Handler) HandleCourses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateCourse(w, r)
	case http.MethodGet:
		h.handleListCourses(w, r)
	default:
		writeError(w, apperr.New(apperr.BadRequest, "method not allowed"))
	}
}

func (h *Handler) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRole(w, r, models.RoleInstructor)
	if !ok {
		return
	}
	var payload createCourseRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	course, err := h.Store.CreateCourse(r.Context(), storage.CreateCourseParams{
		InstructorID: claims.UserID,
		Title:        payload.Title,
		Description:  payload.Description,
		Premium:      payload.Premium,
	})
	if err != nil {
		writeError(w, apperr.Internalize(err))
		return
	}

	h.Logger.Info("course created", "course_id", course.ID, "instructor_id", claims.UserID)
	writeJSON(w, http.StatusCreated, course)
}

func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireClaims(w, r); !ok {
		return
	}
	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	courses, total, err := h.Store.ListCourses(r.Context(), page, size)
	if err != nil {
		writeError(w, apperr.Internalize(err))
		return
	}
	writeJSON(w, http.StatusOK, models.NewPage(courses, total, page, size))
}
