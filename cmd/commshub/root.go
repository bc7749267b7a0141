package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pysugar/commshub/internal/maintenance"
	"github.com/pysugar/commshub/internal/server"
	"github.com/pysugar/commshub/internal/version"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "commshub",
		Short:         "HR internal communications backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("COMMSHUB_CONFIG", "commshub.yaml"), "path to the YAML config file")

	// withApp opens the composition root for a subcommand and closes it after.
	withApp := func(run func(cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return run(cmd, a)
		}
	}

	root.AddCommand(
		serveCmd(withApp),
		seedCompaniesCmd(withApp),
		&cobra.Command{
			Use:   "assign-companies",
			Short: "Assign employees without a company to the least populated company",
			RunE: withApp(func(cmd *cobra.Command, a *app) error {
				got, err := maintenance.AssignCompaniesRoundRobin(cmd.Context(), a.employees, a.logger)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"assigned": len(got), "assignments": got})
			}),
		},
		&cobra.Command{
			Use:   "backfill-channels",
			Short: "Fill missing preferred channels on employees and channels on logs",
			RunE: withApp(func(cmd *cobra.Command, a *app) error {
				res, err := maintenance.BackfillChannels(cmd.Context(), a.employees, a.logs, a.logger)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			}),
		},
		&cobra.Command{
			Use:   "verify-tables",
			Short: "Report which expected tables exist",
			RunE: withApp(func(cmd *cobra.Command, a *app) error {
				statuses, missing := maintenance.VerifyTables(a.database)
				if err := printJSON(cmd, statuses); err != nil {
					return err
				}
				if len(missing) > 0 {
					return fmt.Errorf("missing tables: %v", missing)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			},
		},
	)
	return root
}

type appRunner func(run func(cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error

func serveCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			srv := &http.Server{
				Addr:              a.cfg.Server.Addr(),
				Handler:           server.NewRouter(a.serverDeps()),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       60 * time.Second,
				WriteTimeout:      5 * time.Minute,
				IdleTimeout:       60 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go a.sweepStates(ctx, time.Minute)

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().
					Str("addr", srv.Addr).
					Str("version", version.String()).
					Str("redirect_url", a.cfg.RedirectURL()).
					Msg("Starting HTTP server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info().Msg("Shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error().Err(err).Msg("HTTP server shutdown failed")
				return err
			}
			a.logger.Info().Msg("Server stopped")
			return nil
		}),
	}
}

func seedCompaniesCmd(withApp appRunner) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-companies",
		Short: "Upsert companies by name from a YAML file",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			seed, err := maintenance.LoadSeedFile(file)
			if err != nil {
				return err
			}
			res := maintenance.SeedCompanies(cmd.Context(), a.employees, seed.Companies, a.logger)
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d companies could not be seeded", len(res.Errors))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&file, "file", "companies.yaml", "seed file")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
