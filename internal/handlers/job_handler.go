package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/ternarybob/scribo/internal/queue"
)

// JobHandler serves job submission and status queries
type JobHandler struct {
	jobs    interfaces.JobStorage
	manager *queue.Manager
	logger  arbor.ILogger
}

// NewJobHandler creates a JobHandler
func NewJobHandler(jobs interfaces.JobStorage, manager *queue.Manager, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:    jobs,
		manager: manager,
		logger:  logger,
	}
}

// JobsHandler handles /api/jobs: POST enqueues a raw message for async
// processing, GET lists job records.
func (h *JobHandler) JobsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.submitJob(w, r)
	case http.MethodGet:
		h.listJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// submitJob accepts a raw message body and enqueues it. The worker pool
// normalizes and processes it; shape errors surface on the job record, not
// here.
func (h *JobHandler) submitJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) == 0 {
		WriteError(w, http.StatusBadRequest, "empty request body")
		return
	}

	messageID, err := h.manager.Enqueue(r.Context(), body)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to enqueue job submission")
		WriteError(w, http.StatusInternalServerError, "failed to enqueue message")
		return
	}

	h.logger.Info().Str("message_id", messageID).Msg("Job submission enqueued")
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":    "queued",
		"messageId": messageID,
	})
}

func (h *JobHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	opts := &interfaces.JobListOptions{
		State:  models.JobState(r.URL.Query().Get("state")),
		Limit:  QueryInt(r, "limit", 50),
		Offset: QueryInt(r, "offset", 0),
	}

	records, err := h.jobs.List(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if records == nil {
		records = []*models.JobRecord{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  records,
		"count": len(records),
	})
}

// JobByIDHandler handles GET /api/jobs/{id}
func (h *JobHandler) JobByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	record, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if err == models.ErrNotFound {
			WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	WriteJSON(w, http.StatusOK, record)
}
