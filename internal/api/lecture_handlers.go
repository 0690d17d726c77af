package api

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"coursecast/internal/apperr"
	"coursecast/internal/ingestion"
	"coursecast/internal/models"
)

// maxUploadMemory bounds how much of a multipart body is buffered in memory
// before spilling to disk.
const maxUploadMemory = 32 << 20

// HandleUploadLecture ingests a single lecture video for a course.
// Expects multipart form fields course_id, title, description, category,
// subcategory and the file part lecture_file.
func (h *Handler) HandleUploadLecture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, apperr.New(apperr.BadRequest, "method not allowed"))
		return
	}
	if _, ok := h.requireRole(w, r, models.RoleInstructor); !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, apperr.Wrapf(apperr.BadRequest, err, "invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("lecture_file")
	if err != nil {
		writeError(w, apperr.New(apperr.BadRequest, "lecture_file is required"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apperr.Wrapf(apperr.Internal, err, "read uploaded file"))
		return
	}

	lecture, err := h.Workflow.UploadLecture(r.Context(), ingestion.UploadRequest{
		CourseID:    r.FormValue("course_id"),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Subcategory: r.FormValue("subcategory"),
		Filename:    header.Filename,
		ContentType: partContentType(header),
		Content:     content,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lecture)
}

// HandleUploadBatch ingests several lecture videos for one course in a single
// request. Expects course_id, a metadata field holding a JSON array aligned
// with the repeated lecture_files parts.
func (h *Handler) HandleUploadBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, apperr.New(apperr.BadRequest, "method not allowed"))
		return
	}
	if _, ok := h.requireRole(w, r, models.RoleInstructor); !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, apperr.Wrapf(apperr.BadRequest, err, "invalid multipart form"))
		return
	}

	courseID := r.FormValue("course_id")
	var metadata []ingestion.LectureMetadata
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			writeError(w, apperr.New(apperr.BadRequest, "metadata must be a JSON array"))
			return
		}
	}

	var fileHeaders []*multipart.FileHeader
	if r.MultipartForm != nil {
		fileHeaders = r.MultipartForm.File["lecture_files"]
	}
	if len(fileHeaders) != len(metadata) {
		writeError(w, apperr.Newf(apperr.BadRequest,
			"got %d files but %d metadata entries", len(fileHeaders), len(metadata)))
		return
	}

	items := make([]ingestion.BatchItem, 0, len(fileHeaders))
	for _, header := range fileHeaders {
		content, err := readFormFile(header)
		if err != nil {
			writeError(w, err)
			return
		}
		items = append(items, ingestion.BatchItem{
			Filename:    header.Filename,
			ContentType: partContentType(header),
			Content:     content,
			Meta:        metadata[len(items)],
		})
	}

	result, err := h.Batch.UploadBatch(r.Context(), courseID, items)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, apperr.Wrapf(apperr.BadRequest, err, "open uploaded file %s", header.Filename)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, apperr.Wrapf(apperr.Internal, err, "read uploaded file %s", header.Filename)
	}
	return content, nil
}

func partContentType(header *multipart.FileHeader) string {
	return header.Header.Get("Content-Type")
}
