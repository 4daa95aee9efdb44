package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thumbforge/thumbforge/internal/api/dto"
	"github.com/thumbforge/thumbforge/internal/job"
	"github.com/thumbforge/thumbforge/internal/result"
	"github.com/thumbforge/thumbforge/internal/store"
)

// SubmitImage handles POST /v1/images
// Submits a source URL for thumbnail generation
func (h *ImageHandler) SubmitImage(c *gin.Context) {
	var req dto.SubmitImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "url must be an absolute http or https URL",
		})
		return
	}

	j, created, err := h.submitter.Submit(c.Request.Context(), req.URL)
	if err != nil {
		var dup *store.DuplicateActiveError
		if errors.As(err, &dup) {
			c.JSON(http.StatusConflict, gin.H{
				"message": "A job for this URL is already in progress",
				"job":     dto.NewJobResponse(dup.Job),
			})
			return
		}
		h.logger.Error("Failed to submit job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit job",
		})
		return
	}

	h.logger.Info("Submission accepted",
		slog.String("job_id", j.ID),
		slog.Bool("created", created),
	)
	c.JSON(http.StatusAccepted, dto.NewJobResponse(j))
}

// GetImage handles GET /v1/images/:job_id
// Retrieves a single job record
func (h *ImageHandler) GetImage(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	j, err := h.store.GetByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.NewJobResponse(j))
}

// ListImages handles GET /v1/images
// Lists jobs with optional status and creation-time filters, newest first
func (h *ImageHandler) ListImages(c *gin.Context) {
	var req dto.ListImagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	filter := store.Filter{}
	if req.Status != "" {
		if !job.ValidStatus(req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "status must be one of pending, processing, completed, failed",
			})
			return
		}
		filter.Status = job.Status(req.Status)
	}
	if req.CreatedBefore != "" {
		t, err := time.Parse(time.RFC3339, req.CreatedBefore)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "created_before must be an RFC 3339 timestamp",
			})
			return
		}
		filter.CreatedBefore = &t
	}
	if req.CreatedAfter != "" {
		t, err := time.Parse(time.RFC3339, req.CreatedAfter)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "created_after must be an RFC 3339 timestamp",
			})
			return
		}
		filter.CreatedAfter = &t
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := h.store.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	items := make([]dto.JobResponse, len(jobs))
	for i := range jobs {
		items[i] = dto.NewJobResponse(&jobs[i])
	}

	c.JSON(http.StatusOK, dto.ListImagesResponse{
		Items: items,
		Pagination: dto.Pagination{
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
		},
	})
}

// GetThumbnail handles GET /v1/images/:job_id/thumbnail
// Serves the stored thumbnail bytes for a completed job
func (h *ImageHandler) GetThumbnail(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	j, err := h.store.GetByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	if j.Status != job.StatusCompleted || j.ResultRef == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "Thumbnail not available",
			"status": string(j.Status),
		})
		return
	}

	data, err := h.results.Get(c.Request.Context(), *j.ResultRef)
	if err != nil {
		if errors.Is(err, result.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Thumbnail not available",
			})
			return
		}
		h.logger.Error("Failed to read thumbnail", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read thumbnail",
		})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

// GetMetrics handles GET /v1/metrics
// Reports job counts per status
func (h *ImageHandler) GetMetrics(c *gin.Context) {
	counts, err := h.store.CountByStatus(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to count jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to count jobs",
		})
		return
	}

	resp := dto.MetricsResponse{
		Pending:    counts[job.StatusPending],
		Processing: counts[job.StatusProcessing],
		Completed:  counts[job.StatusCompleted],
		Failed:     counts[job.StatusFailed],
	}
	resp.Total = resp.Pending + resp.Processing + resp.Completed + resp.Failed

	c.JSON(http.StatusOK, resp)
}
