package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pysugar/commshub/internal/auth/google"
	"github.com/pysugar/commshub/internal/auth/token"
	"github.com/pysugar/commshub/internal/config"
	"github.com/pysugar/commshub/internal/db"
	"github.com/pysugar/commshub/internal/drive"
	"github.com/pysugar/commshub/internal/logging"
	"github.com/pysugar/commshub/internal/report"
	"github.com/pysugar/commshub/internal/server"
	"gorm.io/gorm"
)

// credentialBackend is a token.CredentialStore that can also drop stale states.
type credentialBackend interface {
	token.CredentialStore
	DeleteExpiredStates(ctx context.Context, now time.Time) (int64, error)
}

// app is the composition root shared by the subcommands.
type app struct {
	cfg         *config.Config
	logger      *logging.Logger
	database    *gorm.DB
	credentials credentialBackend
	employees   *db.EmployeeStore
	logs        *db.LogStore
	closers     []func()
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	database, err := db.InitDB(cfg.Database.Path, cfg.Database.LogQueries)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &app{
		cfg:       cfg,
		logger:    logger,
		database:  database,
		employees: db.NewEmployeeStore(database),
		logs:      db.NewLogStore(database),
	}
	if sqlDB, err := database.DB(); err == nil {
		a.closers = append(a.closers, func() { sqlDB.Close() })
	}

	sealer, err := db.NewSealer(cfg.Security.TokenEncryptionKey)
	if err != nil {
		a.close()
		return nil, err
	}
	if sealer == nil && cfg.IsProduction() {
		logger.Warn().Msg("security.token_encryption_key is not set; OAuth tokens are stored in plaintext")
	}

	if dsn := cfg.Database.CredentialsDSN; dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pg, err := db.OpenPGCredentialStore(ctx, dsn, sealer)
		if err != nil {
			a.close()
			return nil, err
		}
		a.credentials = pg
		a.closers = append(a.closers, pg.Close)
		logger.Info().Msg("credentials stored in Postgres")
	} else {
		a.credentials = db.NewCredentialStore(database, sealer)
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) tokenManager() *token.Manager {
	redirectURL := a.cfg.RedirectURL()
	oauthCfg := google.NewOAuthConfig(a.cfg.Google, redirectURL)
	if !google.IsConfigured(oauthCfg) {
		a.logger.Warn().Msg("Google OAuth client is not configured; Drive connections are disabled")
	}
	return token.NewManager(a.credentials, oauthCfg,
		token.WithConsentOptions(google.ConsentOptions(redirectURL)...),
		token.WithStateTTL(a.cfg.Google.GetStateTTL()),
		token.WithLogger(a.logger),
	)
}

func (a *app) driveClient(tokens drive.TokenSource) *drive.Client {
	return drive.NewClient(tokens,
		drive.WithBaseURL(a.cfg.Drive.BaseURL),
		drive.WithUploadURL(a.cfg.Drive.UploadURL),
		drive.WithRateLimit(a.cfg.Drive.RateLimit),
		drive.WithTimeout(a.cfg.Drive.GetTimeout()),
		drive.WithLogger(a.logger),
	)
}

func (a *app) serverDeps() server.Deps {
	mgr := a.tokenManager()
	loc := a.cfg.Report.Location()
	reportOpts := report.Options{MaxAlerts: a.cfg.Report.MaxAlerts, Location: loc}
	return server.Deps{
		Tokens:     mgr,
		Drive:      a.driveClient(mgr),
		Reports:    report.NewAggregator(a.logs, a.employees, reportOpts, a.logger),
		Employees:  a.employees,
		Logs:       a.logs,
		Auth:       a.cfg.Auth,
		ReportZone: loc,
		Logger:     a.logger,
	}
}

// sweepStates removes expired OAuth states until ctx is done.
func (a *app) sweepStates(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.credentials.DeleteExpiredStates(ctx, time.Now())
			if err != nil {
				a.logger.Warn().Err(err).Msg("failed to sweep expired OAuth states")
				continue
			}
			if n > 0 {
				a.logger.Debug().Int64("deleted", n).Msg("expired OAuth states swept")
			}
		}
	}
}
