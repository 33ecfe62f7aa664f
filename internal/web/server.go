// Package web provides the HTTP server for the annotation platform. It is a
// thin layer: handlers decode requests, resolve the acting user, call into
// the workflow and export services, and serialize the results.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/amrlab/amrflow/internal/auth"
	"github.com/amrlab/amrflow/internal/config"
	"github.com/amrlab/amrflow/internal/export"
	"github.com/amrlab/amrflow/internal/store"
	"github.com/amrlab/amrflow/internal/workflow"
)

// Server is the HTTP server over the workflow and export services.
type Server struct {
	db       store.Storage
	workflow *workflow.Service
	exports  *export.Service
	issuer   *auth.TokenIssuer
	settings *config.Settings
	log      *slog.Logger
	mux      *http.ServeMux
	srv      *http.Server
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(settings *config.Settings, db store.Storage,
	issuer *auth.TokenIssuer, log *slog.Logger) *Server {

	s := &Server{
		db:       db,
		workflow: workflow.NewService(db, log),
		exports:  export.NewService(db, log),
		issuer:   issuer,
		settings: settings,
		log:      log,
		mux:      http.NewServeMux(),
	}

	s.registerRoutes()
	return s
}

// Handler returns the fully wrapped HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.requestIDMiddleware(s.corsMiddleware(s.mux))
}

func (s *Server) registerRoutes() {
	mux := s.mux

	// Auth.
	mux.HandleFunc("POST /auth/register", s.api(s.handleRegister))
	mux.HandleFunc("POST /auth/token", s.api(s.handleToken))
	mux.HandleFunc("GET /auth/me", s.api(s.handleMe))
	mux.HandleFunc("GET /auth/pending", s.api(s.handlePendingUsers))
	mux.HandleFunc("POST /auth/approve/{user_id}", s.api(s.handleApproveUser))

	// Projects and memberships.
	mux.HandleFunc("POST /projects", s.api(s.handleCreateProject))
	mux.HandleFunc("GET /projects", s.api(s.handleListProjects))
	mux.HandleFunc("GET /projects/{project_id}/summary",
		s.api(s.handleProjectSummary))
	mux.HandleFunc("GET /projects/{project_id}/members",
		s.api(s.handleListMembers))
	mux.HandleFunc("POST /projects/{project_id}/members",
		s.api(s.handleAddMember))
	mux.HandleFunc("POST /projects/{project_id}/members/{member_user_id}/approve",
		s.api(s.handleApproveMember))
	mux.HandleFunc("PATCH /projects/{project_id}/members/{member_user_id}",
		s.api(s.handleUpdateMember))

	// Sentences and the workflow operations.
	mux.HandleFunc("POST /sentences/project/{project_id}",
		s.api(s.handleCreateSentence))
	mux.HandleFunc("GET /sentences/project/{project_id}",
		s.api(s.handleListSentences))
	mux.HandleFunc("GET /sentences/{sentence_id}", s.api(s.handleGetSentence))
	mux.HandleFunc("POST /sentences/{sentence_id}/assign",
		s.api(s.handleAssign))
	mux.HandleFunc("POST /sentences/{sentence_id}/submit",
		s.api(s.handleSubmit))
	mux.HandleFunc("POST /sentences/{sentence_id}/validate",
		s.api(s.handleValidate))
	mux.HandleFunc("POST /sentences/{sentence_id}/review",
		s.api(s.handleReview))
	mux.HandleFunc("POST /sentences/{sentence_id}/adjudicate",
		s.api(s.handleAdjudicate))
	mux.HandleFunc("POST /sentences/{sentence_id}/accept",
		s.api(s.handleAccept))
	mux.HandleFunc("POST /sentences/{sentence_id}/reopen",
		s.api(s.handleReopen))

	// Audit log.
	mux.HandleFunc("GET /audit", s.api(s.handleListAuditLogs))

	// Exports.
	mux.HandleFunc("GET /exports/project/{project_id}",
		s.api(s.handleInlineExport))
	mux.HandleFunc("POST /exports/project/{project_id}/jobs",
		s.api(s.handleCreateExportJob))
	mux.HandleFunc("GET /exports/project/{project_id}/jobs",
		s.api(s.handleListExportJobs))
	mux.HandleFunc("GET /exports/jobs/{job_id}", s.api(s.handleGetExportJob))
	mux.HandleFunc("GET /exports/jobs/{job_id}/download",
		s.handleDownloadExportJob)
}

// Start runs the HTTP server until it fails or is shut down.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.settings.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("http server listening", "addr", s.settings.ListenAddr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
