package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/UniQw/jobq"
	"github.com/gin-gonic/gin"
)

type JobHandler struct {
	client *jobq.Client
	log    jobq.Logger
}

func NewJobHandler(client *jobq.Client, log jobq.Logger) *JobHandler {
	return &JobHandler{client: client, log: log}
}

type EnqueueResponse struct {
	ID string `json:"id"`
}

type ListJobsQuery struct {
	State string `form:"state"`
}

func (h *JobHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req jobq.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts, err := req.Options()
	if err != nil {
		h.fail(c, err)
		return
	}
	id, err := h.client.Enqueue(c.Request.Context(), req.Command, opts...)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, EnqueueResponse{ID: id})
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var q ListJobsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state := jobq.StatePending
	if q.State != "" {
		s, err := jobq.ParseState(q.State)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		state = s
	}
	jobs, err := h.client.ListJobs(c.Request.Context(), state, nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state, "jobs": jobs})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	j, err := h.client.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (h *JobHandler) Status(c *gin.Context) {
	sum, err := h.client.StatusSummary(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *JobHandler) ListDead(c *gin.Context) {
	jobs, err := h.client.DLQ().List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *JobHandler) RetryDead(c *gin.Context) {
	id := c.Param("id")
	if err := h.client.DLQ().Retry(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "state": jobq.StatePending})
}

func (h *JobHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && h.log != nil {
		h.log.Errorf("api: %s %s failed: err=%v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, jobq.ErrInvalidInput), errors.Is(err, jobq.ErrUnknownState):
		return http.StatusBadRequest
	case errors.Is(err, jobq.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobq.ErrNotInDLQ), errors.Is(err, jobq.ErrDuplicateJob):
		return http.StatusConflict
	case errors.Is(err, jobq.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
