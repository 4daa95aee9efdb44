package dto

import (
	"encoding/json"
	"time"

	"github.com/thumbforge/thumbforge/internal/job"
)

// SubmitImageRequest is the body of POST /v1/images.
type SubmitImageRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// JobResponse is the wire representation of a job.
type JobResponse struct {
	ID        string          `json:"id"`
	SourceURL string          `json:"source_url"`
	Status    string          `json:"status"`
	Attempts  int             `json:"attempts"`
	Error     *string         `json:"error"`
	ResultRef *string         `json:"result_ref"`
	Result    json.RawMessage `json:"result"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// NewJobResponse converts a domain job to its wire form.
func NewJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		SourceURL: j.SourceURL,
		Status:    string(j.Status),
		Attempts:  j.Attempts,
		Error:     j.Error,
		ResultRef: j.ResultRef,
		Result:    j.Result,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}

// ListImagesRequest carries the query parameters of GET /v1/images.
type ListImagesRequest struct {
	Status        string `form:"status"`
	CreatedBefore string `form:"created_before"`
	CreatedAfter  string `form:"created_after"`
	Limit         int    `form:"limit"`
	Offset        int    `form:"offset"`
}

// Pagination describes a page of results.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListImagesResponse is the body of GET /v1/images.
type ListImagesResponse struct {
	Items      []JobResponse `json:"items"`
	Pagination Pagination    `json:"pagination"`
}

// MetricsResponse reports job counts per status.
type MetricsResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
