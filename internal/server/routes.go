package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Pub/Sub push ingress
	mux.HandleFunc("/pubsub/push", s.app.PushHandler.PushHandler)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.JobsHandler)    // GET (list), POST (enqueue)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.JobByIDHandler) // GET /{id}

	// API routes - Artifacts
	mux.HandleFunc("/api/artifacts/", s.app.ArtifactHandler.ArtifactByIDHandler) // GET /{id}

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	return mux
}
