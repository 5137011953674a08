package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
)

// ArtifactHandler serves generated artifact reads
type ArtifactHandler struct {
	artifacts interfaces.ArtifactStorage
	logger    arbor.ILogger
}

// NewArtifactHandler creates an ArtifactHandler
func NewArtifactHandler(artifacts interfaces.ArtifactStorage, logger arbor.ILogger) *ArtifactHandler {
	return &ArtifactHandler{
		artifacts: artifacts,
		logger:    logger,
	}
}

// ArtifactByIDHandler handles GET /api/artifacts/{id}
func (h *ArtifactHandler) ArtifactByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	artifactID := strings.TrimPrefix(r.URL.Path, "/api/artifacts/")
	if artifactID == "" || strings.Contains(artifactID, "/") {
		WriteError(w, http.StatusBadRequest, "invalid artifact id")
		return
	}

	artifact, err := h.artifacts.Get(r.Context(), artifactID)
	if err != nil {
		if err == models.ErrNotFound {
			WriteError(w, http.StatusNotFound, "artifact not found")
			return
		}
		h.logger.Error().Err(err).Str("artifact_id", artifactID).Msg("Failed to get artifact")
		WriteError(w, http.StatusInternalServerError, "failed to get artifact")
		return
	}

	WriteJSON(w, http.StatusOK, artifact)
}
