// Package server wires the commshub HTTP API.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/commshub/internal/auth/token"
	"github.com/pysugar/commshub/internal/config"
	"github.com/pysugar/commshub/internal/db"
	"github.com/pysugar/commshub/internal/drive"
	"github.com/pysugar/commshub/internal/logging"
	"github.com/pysugar/commshub/internal/report"
	"github.com/pysugar/commshub/internal/server/handlers"
	"github.com/pysugar/commshub/internal/server/middleware"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Tokens     *token.Manager
	Drive      *drive.Client
	Reports    *report.Aggregator
	Employees  *db.EmployeeStore
	Logs       *db.LogStore
	Auth       config.AuthConfig
	ReportZone *time.Location
	Logger     *logging.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(logging.RequestIDMiddleware)
	r.Use(logging.HTTPMiddleware(d.Logger))

	// ============================================
	// Public Routes
	// ============================================

	r.Get("/healthz", handlers.HealthHandler())
	r.Get("/api/version", handlers.VersionHandler())

	// OAuth callback: the user is recovered from the state row
	r.Get("/auth/google/callback", handlers.CallbackHandler(d.Tokens, d.Logger))

	r.Route("/webhooks/whatsapp/{companyID}", func(r chi.Router) {
		r.Get("/", handlers.WhatsAppVerifyHandler(d.Employees, d.Logger))
		r.Post("/", handlers.WhatsAppEventsHandler(d.Employees, d.Logs, d.Logger))
	})

	// ============================================
	// Dashboard Routes (user token required)
	// ============================================

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.UserAuth(d.Auth.JWTSecret, d.Auth.Issuer))

		r.Route("/drive", func(r chi.Router) {
			// Connection lifecycle
			r.Get("/connect", handlers.ConnectHandler(d.Tokens, d.Logger))
			r.Get("/status", handlers.StatusHandler(d.Tokens))
			r.Post("/disconnect", handlers.DisconnectHandler(d.Tokens, d.Logger))

			// Files
			r.Get("/files", handlers.ListFilesHandler(d.Drive))
			r.Post("/files", handlers.UploadFileHandler(d.Drive, d.Logger))
			r.Get("/files/{id}", handlers.FileInfoHandler(d.Drive))
			r.Delete("/files/{id}", handlers.DeleteFileHandler(d.Drive))
			r.Post("/files/{id}/share", handlers.ShareHandler(d.Drive))
			r.Get("/search", handlers.SearchFilesHandler(d.Drive))
			r.Post("/folders", handlers.CreateFolderHandler(d.Drive))
			r.Post("/employee-folders", handlers.EmployeeFoldersHandler(d.Drive, d.Employees, d.Logger))
		})

		r.Get("/reports/communications", handlers.CommunicationReportHandler(d.Reports, d.ReportZone, d.Logger))
	})

	return r
}
