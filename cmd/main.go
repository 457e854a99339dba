package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reportengine/internal/api"
	"github.com/reportengine/internal/auth"
	"github.com/reportengine/internal/config"
	"github.com/reportengine/internal/database"
	"github.com/reportengine/internal/directory"
	"github.com/reportengine/internal/logger"
	"github.com/reportengine/internal/notify"
	"github.com/reportengine/internal/report"
	"github.com/reportengine/internal/scheduler"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const shutdownTimeout = 30 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:          "reportengine",
	Short:        "Scheduled report materialization engine",
	SilenceUsage: true,
}

// app holds everything the subcommands share.
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	db     *gorm.DB
	runner *scheduler.Runner
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}

	composer, err := report.NewComposer(cfg.Report.DateLayout, cfg.Report.ClosingMessage)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}
	materializer := report.NewMaterializer(db, directory.New(db), composer, log)

	runner := scheduler.NewRunner(db, materializer, log, scheduler.Options{
		Concurrency: cfg.Scheduler.Concurrency,
		Claim:       cfg.Scheduler.Claim,
		TaskTimeout: cfg.Scheduler.TaskTimeout,
		Location:    cfg.Scheduler.Location(),
		Notifier:    notify.FromConfig(cfg.Notify),
	})

	return &app{cfg: cfg, log: log, db: db, runner: runner}, nil
}

func (a *app) close() {
	if err := database.Close(a.db); err != nil {
		a.log.WithError(err).Warn("Failed to close database")
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler trigger and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		cfg := a.cfg
		// Everything that can fail is built before the trigger starts.
		var authenticator *auth.Authenticator
		if cfg.Server.JWTSecret == "" {
			a.log.Warn("server.jwt_secret is empty, HTTP API disabled")
		} else {
			authenticator, err = auth.NewAuthenticator(cfg.Server.JWTSecret)
			if err != nil {
				return err
			}
		}
		trigger, err := scheduler.NewTrigger(a.runner, cfg.Scheduler.Cron, cfg.Scheduler.Location(), cfg.Scheduler.Overlap, a.log)
		if err != nil {
			return err
		}

		trigger.Start()
		a.log.WithFields(logrus.Fields{
			"cron":     cfg.Scheduler.Cron,
			"timezone": cfg.Scheduler.Timezone,
			"next":     trigger.Next(),
		}).Info("Scheduler armed")

		var server *api.Server
		errCh := make(chan error, 1)
		if authenticator != nil {
			server = api.NewServer(a.db, a.runner, authenticator, cfg.Scheduler.Location(), a.log)
			go func() {
				errCh <- server.Start(cfg.Server.Port)
			}()
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		var serveErr error
		select {
		case sig := <-quit:
			a.log.WithField("signal", sig.String()).Info("Shutting down")
		case serveErr = <-errCh:
			a.log.WithError(serveErr).Error("API server stopped")
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if server != nil {
			if err := server.Shutdown(ctx); err != nil {
				a.log.WithError(err).Warn("Failed to shut down API server")
			}
		}
		if err := trigger.Stop(ctx); err != nil {
			a.log.WithError(err).Warn("Scheduler tick did not finish before shutdown")
		}
		return serveErr
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run every due schedule once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		result, err := a.runner.Tick(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Due: %d  Succeeded: %d  Failed: %d  Skipped: %d\n",
			result.Due, result.Succeeded, result.Failed, result.Skipped)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		a.log.WithField("driver", a.cfg.Database.Driver).Info("Database schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ./config.yaml)")
	rootCmd.AddCommand(serveCmd, tickCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
