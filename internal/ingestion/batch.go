package ingestion

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"coursecast/internal/apperr"
	"coursecast/internal/models"
)

// DefaultBatchMaxItems bounds a batch unless configured otherwise.
const DefaultBatchMaxItems = 2

// LectureMetadata is the per-file descriptive payload of a batch item.
type LectureMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// BatchItem pairs one uploaded file with its metadata.
type BatchItem struct {
	Filename    string
	ContentType string
	Content     []byte
	Meta        LectureMetadata
}

// ItemResult reports the outcome of one item in a batch. Exactly one of
// Lecture and Error is set.
type ItemResult struct {
	Filename string          `json:"filename"`
	Success  bool            `json:"success"`
	Lecture  *models.Lecture `json:"lecture,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// BatchResult aggregates the outcomes of a whole batch, in input order.
type BatchResult struct {
	CourseID          string       `json:"courseId"`
	TotalUploads      int          `json:"totalUploads"`
	SuccessfulUploads int          `json:"successfulUploads"`
	FailedUploads     int          `json:"failedUploads"`
	Results           []ItemResult `json:"results"`
}

// Coordinator fans a batch of uploads out over the workflow, bounding
// concurrency and isolating per-item failures.
type Coordinator struct {
	workflow *Workflow
	maxItems int
	logger   *slog.Logger
}

// NewCoordinator builds a Coordinator. maxItems <= 0 falls back to
// DefaultBatchMaxItems.
func NewCoordinator(workflow *Workflow, maxItems int, logger *slog.Logger) *Coordinator {
	if maxItems <= 0 {
		maxItems = DefaultBatchMaxItems
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{workflow: workflow, maxItems: maxItems, logger: logger}
}

// MaxItems reports the configured batch bound.
func (c *Coordinator) MaxItems() int {
	return c.maxItems
}

// UploadBatch validates the batch up front, then runs the items concurrently.
// A failing item is recorded in its result slot and never interrupts its
// siblings.
func (c *Coordinator) UploadBatch(ctx context.Context, courseID string, items []BatchItem) (BatchResult, error) {
	if len(items) == 0 {
		return BatchResult{}, apperr.New(apperr.BadRequest, "no files provided")
	}
	if len(items) > c.maxItems {
		return BatchResult{}, apperr.Newf(apperr.BadRequest, "maximum %d videos allowed per batch", c.maxItems)
	}
	for i, item := range items {
		if !IsVideo(item.ContentType) {
			return BatchResult{}, apperr.Newf(apperr.BadRequest, "file %d (%s) must be a video", i+1, item.Filename)
		}
	}
	// The course must exist before any slot is created, so a bad course id
	// fails the whole batch instead of producing N identical item errors.
	if _, err := c.workflow.store.GetCourse(ctx, courseID); err != nil {
		return BatchResult{}, err
	}

	results := make([]ItemResult, len(items))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.maxItems)

	for i, item := range items {
		i, item := i, item
		group.Go(func() error {
			lecture, err := c.workflow.UploadLecture(groupCtx, UploadRequest{
				CourseID:    courseID,
				Title:       item.Meta.Title,
				Description: item.Meta.Description,
				Category:    item.Meta.Category,
				Subcategory: item.Meta.Subcategory,
				Filename:    item.Filename,
				ContentType: item.ContentType,
				Content:     item.Content,
			})
			if err != nil {
				results[i] = ItemResult{
					Filename: item.Filename,
					Error:    apperr.UserMessage(err),
				}
				return nil
			}
			results[i] = ItemResult{
				Filename: item.Filename,
				Success:  true,
				Lecture:  &lecture,
			}
			return nil
		})
	}
	// Workers never return an error, so Wait only orders the writes above.
	group.Wait()

	result := BatchResult{
		CourseID:     courseID,
		TotalUploads: len(items),
		Results:      results,
	}
	for _, item := range results {
		if item.Success {
			result.SuccessfulUploads++
		} else {
			result.FailedUploads++
		}
	}
	c.logger.Info("batch upload finished",
		"course_id", courseID,
		"total", result.TotalUploads,
		"succeeded", result.SuccessfulUploads,
		"failed", result.FailedUploads)
	return result, nil
}
