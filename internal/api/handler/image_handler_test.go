package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thumbforge/thumbforge/internal/api/dto"
	"github.com/thumbforge/thumbforge/internal/api/handler"
	"github.com/thumbforge/thumbforge/internal/api/router"
	"github.com/thumbforge/thumbforge/internal/job"
	"github.com/thumbforge/thumbforge/internal/queue"
	"github.com/thumbforge/thumbforge/internal/result"
	"github.com/thumbforge/thumbforge/internal/store"
	"github.com/thumbforge/thumbforge/internal/submit"
)

type apiFixture struct {
	store   *store.Memory
	queue   *queue.Memory
	results *result.Store
	engine  *gin.Engine
}

func newAPIFixture(t *testing.T, mode job.DuplicateMode) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory()
	q := queue.NewMemory(16)
	results, err := result.NewStore(t.TempDir())
	require.NoError(t, err)

	engine := router.SetupRouter(&handler.Dependencies{
		Logger:    logger,
		Store:     st,
		Submitter: submit.NewService(st, q, mode, logger),
		Results:   results,
	})

	return &apiFixture{store: st, queue: q, results: results, engine: engine}
}

func (f *apiFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestSubmitImage(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		f := newAPIFixture(t, job.DuplicateAllowRetry)

		rec := f.do(http.MethodPost, "/v1/images", gin.H{"url": "https://example.com/cat.png"})
		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp dto.JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, "https://example.com/cat.png", resp.SourceURL)
		assert.Equal(t, "pending", resp.Status)

		// The job really was enqueued.
		assert.Equal(t, 1, f.queue.Len())
	})

	t.Run("missing url", func(t *testing.T) {
		f := newAPIFixture(t, job.DuplicateAllowRetry)
		rec := f.do(http.MethodPost, "/v1/images", gin.H{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-http scheme", func(t *testing.T) {
		f := newAPIFixture(t, job.DuplicateAllowRetry)
		rec := f.do(http.MethodPost, "/v1/images", gin.H{"url": "ftp://example.com/cat.png"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reject-active returns conflict with the active job", func(t *testing.T) {
		f := newAPIFixture(t, job.DuplicateRejectActive)

		first := f.do(http.MethodPost, "/v1/images", gin.H{"url": "https://example.com/busy.png"})
		require.Equal(t, http.StatusAccepted, first.Code)
		var created dto.JobResponse
		require.NoError(t, json.Unmarshal(first.Body.Bytes(), &created))

		second := f.do(http.MethodPost, "/v1/images", gin.H{"url": "https://example.com/busy.png"})
		require.Equal(t, http.StatusConflict, second.Code)

		var conflict struct {
			Message string          `json:"message"`
			Job     dto.JobResponse `json:"job"`
		}
		require.NoError(t, json.Unmarshal(second.Body.Bytes(), &conflict))
		assert.NotEmpty(t, conflict.Message)
		assert.Equal(t, created.ID, conflict.Job.ID)
	})

	t.Run("reuse-completed returns the finished job", func(t *testing.T) {
		f := newAPIFixture(t, job.DuplicateReuseCompleted)

		first := f.do(http.MethodPost, "/v1/images", gin.H{"url": "https://example.com/reuse.png"})
		require.Equal(t, http.StatusAccepted, first.Code)
		var created dto.JobResponse
		require.NoError(t, json.Unmarshal(first.Body.Bytes(), &created))

		completeJob(t, f.store, created.ID)

		second := f.do(http.MethodPost, "/v1/images", gin.H{"url": "https://example.com/reuse.png"})
		require.Equal(t, http.StatusAccepted, second.Code)

		var reused dto.JobResponse
		require.NoError(t, json.Unmarshal(second.Body.Bytes(), &reused))
		assert.Equal(t, created.ID, reused.ID)
		assert.Equal(t, "completed", reused.Status)
	})
}

func completeJob(t *testing.T, st *store.Memory, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := st.Transition(ctx, id, job.StatusPending, job.StatusProcessing, store.Fields{})
	require.NoError(t, err)
	ref := id + ".jpg"
	_, err = st.Transition(ctx, id, job.StatusProcessing, job.StatusCompleted, store.Fields{
		ResultRef: &ref,
		Result:    json.RawMessage(`{"width":10,"height":10}`),
	})
	require.NoError(t, err)
}

func TestGetImage(t *testing.T) {
	f := newAPIFixture(t, job.DuplicateAllowRetry)

	created := f.do(http.MethodPost, "/v1/images", gin.H{"url": "https://example.com/get.png"})
	require.Equal(t, http.StatusAccepted, created.Code)
	var submitted dto.JobResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &submitted))

	t.Run("found", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/images/"+submitted.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp dto.JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, submitted.ID, resp.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/images/7b0e8a66-0000-4000-8000-000000000042", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/images/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListImages(t *testing.T) {
	f := newAPIFixture(t, job.DuplicateAllowRetry)

	var ids []string
	for i := 0; i < 5; i++ {
		rec := f.do(http.MethodPost, "/v1/images", gin.H{"url": "https://example.com/list.png?i=" + string(rune('a'+i))})
		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp dto.JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		ids = append(ids, resp.ID)
	}
	completeJob(t, f.store, ids[0])

	t.Run("default page", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/images", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp dto.ListImagesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Items, 5)
		assert.Equal(t, 5, resp.Pagination.Total)
		assert.Equal(t, 20, resp.Pagination.Limit)
		assert.False(t, resp.Pagination.HasMore)

		// Newest first.
		assert.Equal(t, ids[4], resp.Items[0].ID)
	})

	t.Run("window with has_more", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/images?limit=2&offset=0", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp dto.ListImagesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Items, 2)
		assert.Equal(t, 5, resp.Pagination.Total)
		assert.True(t, resp.Pagination.HasMore)
	})

	t.Run("status filter", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/images?status=completed", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp dto.ListImagesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Items, 1)
		assert.Equal(t, ids[0], resp.Items[0].ID)
	})

	t.Run("invalid status", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/images?status=done", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid created_before", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/images?created_before=yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("created_after in the future is empty", func(t *testing.T) {
		future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		rec := f.do(http.MethodGet, "/v1/images?created_after="+future, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp dto.ListImagesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Items)
		assert.Equal(t, 0, resp.Pagination.Total)
	})
}

func TestGetThumbnail(t *testing.T) {
	f := newAPIFixture(t, job.DuplicateAllowRetry)

	created := f.do(http.MethodPost, "/v1/images", gin.H{"url": "https://example.com/thumb.png"})
	require.Equal(t, http.StatusAccepted, created.Code)
	var submitted dto.JobResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &submitted))

	t.Run("pending job has no thumbnail", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/images/"+submitted.ID+"/thumbnail", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("completed job serves bytes", func(t *testing.T) {
		jpeg := []byte("jpeg-bytes")
		_, err := f.results.Put(context.Background(), submitted.ID, jpeg)
		require.NoError(t, err)
		completeJob(t, f.store, submitted.ID)

		rec := f.do(http.MethodGet, "/v1/images/"+submitted.ID+"/thumbnail", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
		assert.Equal(t, jpeg, rec.Body.Bytes())
	})

	t.Run("unknown job", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/images/7b0e8a66-0000-4000-8000-000000000042/thumbnail", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetMetrics(t *testing.T) {
	f := newAPIFixture(t, job.DuplicateAllowRetry)

	var ids []string
	for i := 0; i < 3; i++ {
		rec := f.do(http.MethodPost, "/v1/images", gin.H{"url": "https://example.com/m.png?i=" + string(rune('a'+i))})
		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp dto.JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		ids = append(ids, resp.ID)
	}
	completeJob(t, f.store, ids[0])

	rec := f.do(http.MethodGet, "/v1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.MetricsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Pending)
	assert.Equal(t, 1, resp.Completed)
	assert.Equal(t, 0, resp.Processing)
	assert.Equal(t, 0, resp.Failed)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, job.DuplicateAllowRetry)
	rec := f.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
