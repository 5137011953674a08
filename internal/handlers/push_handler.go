package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
)

// pushEnvelope is the push-subscription wrapper: the message of interest
// lives under "message", subscription metadata alongside it.
type pushEnvelope struct {
	Message      json.RawMessage `json:"message"`
	Subscription string          `json:"subscription"`
}

// PushHandler is the push-subscription ingress: it unwraps the transport
// envelope, runs the processor synchronously, and answers with ack/nack
// status codes.
type PushHandler struct {
	processor    interfaces.MessageProcessor
	ackMalformed bool
	logger       arbor.ILogger
}

// NewPushHandler creates a PushHandler. ackMalformed controls whether an
// unparseable message is acked-and-dropped (2xx) or rejected (4xx).
func NewPushHandler(processor interfaces.MessageProcessor, ackMalformed bool, logger arbor.ILogger) *PushHandler {
	return &PushHandler{
		processor:    processor,
		ackMalformed: ackMalformed,
		logger:       logger,
	}
}

// PushHandler handles POST /pubsub/push
func (h *PushHandler) PushHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read push request body")
		WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	raw := body
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Message) > 0 {
		raw = env.Message
	}

	// Generation can outlast the server's write timeout; detach from the
	// request context so a dropped connection does not abort a pass that
	// would otherwise complete. The subscription redelivers if the ack is
	// lost.
	jobID, err := h.processor.Process(context.WithoutCancel(r.Context()), raw)
	if err != nil {
		if models.IsMalformedInput(err) {
			h.logger.Warn().Err(err).Msg("Malformed push message")
			if h.ackMalformed {
				// Redelivering the same bytes can never succeed; ack and drop
				WriteJSON(w, http.StatusOK, map[string]string{
					"status": "dropped",
					"error":  err.Error(),
				})
				return
			}
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		// Nack so the subscription redelivers
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Push message processing failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// 204 acks the push delivery
	w.WriteHeader(http.StatusNoContent)
}
