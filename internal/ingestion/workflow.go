// Package ingestion drives a lecture upload from raw bytes to a persisted
// lecture with updated course aggregates.
package ingestion

import (
	"context"
	"log/slog"
	"strings"

	"coursecast/internal/apperr"
	"coursecast/internal/media"
	"coursecast/internal/models"
	"coursecast/internal/storage"
)

// Phase names the stages an upload moves through. Each phase is only entered
// after the previous one completed, and a failure in any phase moves the
// session to PhaseFailed.
type Phase string

const (
	PhaseValidating       Phase = "validating"
	PhaseSlotCreated      Phase = "slot_created"
	PhaseBytesTransferred Phase = "bytes_transferred"
	PhaseProcessing       Phase = "processing"
	PhasePersisted        Phase = "persisted"
	PhaseDone             Phase = "done"
	PhaseFailed           Phase = "failed"
)

// UploadRequest carries everything needed to ingest a single lecture video.
type UploadRequest struct {
	CourseID    string
	Title       string
	Description string
	Category    string
	Subcategory string
	Filename    string
	ContentType string
	Content     []byte
}

// UploadSession tracks the progress of one ingestion run.
type UploadSession struct {
	SlotID    string
	UploadURL string
	Premium   bool
	Phase     Phase
}

// Workflow sequences the remote media calls and the storage writes for a
// lecture upload.
type Workflow struct {
	store  storage.Repository
	media  media.Service
	logger *slog.Logger
}

// NewWorkflow builds a Workflow over the given repository and media service.
func NewWorkflow(store storage.Repository, svc media.Service, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{store: store, media: svc, logger: logger}
}

// UploadLecture runs the full ingestion sequence for one video. Any error it
// returns carries a classification, so callers can map it straight to a
// response status.
func (w *Workflow) UploadLecture(ctx context.Context, req UploadRequest) (models.Lecture, error) {
	session := UploadSession{Phase: PhaseValidating}
	logger := w.logger.With("course_id", req.CourseID, "filename", req.Filename)

	lecture, err := w.run(ctx, req, &session, logger)
	if err != nil {
		failedAt := session.Phase
		session.Phase = PhaseFailed
		err = apperr.Internalize(err)
		logger.Error("lecture upload failed", "phase", string(failedAt), "error", err)
		return models.Lecture{}, err
	}
	session.Phase = PhaseDone
	logger.Info("lecture upload complete", "lecture_id", lecture.ID, "duration", lecture.Duration)
	return lecture, nil
}

func (w *Workflow) run(ctx context.Context, req UploadRequest, session *UploadSession, logger *slog.Logger) (models.Lecture, error) {
	if err := validateUpload(req); err != nil {
		return models.Lecture{}, err
	}

	course, err := w.store.GetCourse(ctx, req.CourseID)
	if err != nil {
		return models.Lecture{}, err
	}
	session.Premium = course.Premium

	slot, err := w.media.CreateUploadSlot(ctx, course.Premium)
	if err != nil {
		return models.Lecture{}, err
	}
	session.SlotID = slot.ID
	session.UploadURL = slot.URL
	session.Phase = PhaseSlotCreated
	logger.Debug("upload slot created", "slot_id", slot.ID)

	if err := w.media.TransferBytes(ctx, slot.URL, req.Content, req.ContentType); err != nil {
		return models.Lecture{}, err
	}
	session.Phase = PhaseBytesTransferred

	session.Phase = PhaseProcessing
	asset, err := w.media.AwaitProcessing(ctx, slot.ID)
	if err != nil {
		return models.Lecture{}, err
	}
	logger.Debug("asset ready", "asset_id", asset.ID, "duration", asset.Duration)

	playbackURL, err := w.media.ResolvePlaybackURL(course.Premium, asset.PlaybackID)
	if err != nil {
		return models.Lecture{}, err
	}

	lecture, err := w.store.CreateLecture(ctx, storage.CreateLectureParams{
		CourseID:    course.ID,
		AssetID:     asset.ID,
		PlaybackID:  asset.PlaybackID,
		PlaybackURL: playbackURL,
		Title:       req.Title,
		Description: req.Description,
		Duration:    asset.Duration,
		Category:    req.Category,
		Subcategory: req.Subcategory,
	})
	if err != nil {
		return models.Lecture{}, err
	}
	session.Phase = PhasePersisted

	if _, err := w.store.ApplyLectureAdded(ctx, course.ID, asset.Duration); err != nil {
		return models.Lecture{}, err
	}
	return lecture, nil
}

func validateUpload(req UploadRequest) error {
	if strings.TrimSpace(req.CourseID) == "" {
		return apperr.New(apperr.BadRequest, "course id is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return apperr.New(apperr.BadRequest, "title is required")
	}
	if !IsVideo(req.ContentType) {
		return apperr.New(apperr.BadRequest, "file must be a video")
	}
	if len(req.Content) == 0 {
		return apperr.New(apperr.BadRequest, "file is empty")
	}
	return nil
}

// IsVideo reports whether the declared content type is acceptable for
// ingestion.
func IsVideo(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "video/")
}
