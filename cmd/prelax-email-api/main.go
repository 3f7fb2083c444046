package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/KadevalArpit/prelax-email-api/pkg/account"
	"github.com/KadevalArpit/prelax-email-api/pkg/api"
	"github.com/KadevalArpit/prelax-email-api/pkg/audit"
	"github.com/KadevalArpit/prelax-email-api/pkg/config"
	"github.com/KadevalArpit/prelax-email-api/pkg/dispatch"
	"github.com/KadevalArpit/prelax-email-api/pkg/mail"
	"github.com/KadevalArpit/prelax-email-api/pkg/ratelimit"
	"github.com/KadevalArpit/prelax-email-api/pkg/version"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	root := &cobra.Command{
		Use:   "prelax-email-api",
		Short: "Multi-account email dispatch service",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP dispatch API",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(configPath, debug)
		},
	}
	serve.Flags().StringVar(&configPath, "config", "", "Path to config file (default ./config.yaml, or PRELAX_CONFIG_PATH)")
	serve.Flags().BoolVar(&debug, "debug", false, "Enable debug level logging")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			info := version.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "prelax-email-api %s (commit %s, built %s, %s, %s)\n",
				info.Version, info.GitCommit, info.BuildDate, info.GoVersion, info.Platform)
		},
	}

	root.AddCommand(serve, versionCmd)
	return root
}

func runServe(configPath string, debug bool) error {
	zl := setupLogger(debug)
	log := zl.Sugar()
	log.With("version", version.Version).Info("Starting prelax email api")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading config for email dispatch service: %v", err)
	}
	cfg.Defaults()

	if debug {
		log.Infof("%#v", cfg)
	}

	registry, err := account.LoadRegistry(cfg.Accounts.Path)
	if err != nil {
		log.Fatalf("Error loading sender accounts: %v", err)
	}
	log.Infow("Sender accounts loaded", "path", cfg.Accounts.Path, "accounts", registry.Len())

	tracker := account.NewTracker(registry, log)
	selector := account.NewSelector(registry, tracker)

	recorder, err := audit.NewRecorder(cfg.Audit, zl)
	if err != nil {
		log.Fatalf("Error creating audit recorder: %v", err)
	}

	mailer := mail.NewSMTPMailer(log)
	engine := dispatch.NewEngine(selector, tracker, mailer, recorder, cfg.Dispatch, log)
	coordinator := dispatch.NewCoordinator(engine, recorder, log)

	limiter := ratelimit.New(ratelimit.FromService(cfg.RateLimit))
	server := api.NewServer(zl, cfg, debug, limiter)

	err = server.RegisterAll([]api.APIController{
		api.NewDispatchController(engine, coordinator, log),
		api.NewAccountsController(registry, tracker, log),
	})
	if err != nil {
		log.Fatalf("Error registering dispatch controllers: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background rollover keeps idle accounts resetting at day boundaries.
	go tracker.StartRolloverLoop(ctx, time.Hour)

	go server.Listen()

	<-ctx.Done()
	log.Info("Shutting down")
	limiter.Stop()
	if err := recorder.Stop(); err != nil {
		log.Warnw("Audit recorder did not stop cleanly", "error", err)
	}
	return nil
}

func setupLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	// Disable automatic stacktraces for non-fatal levels to avoid noisy traces in WARN/INFO logs
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		stdlog.Fatalf("failed to set up logger: %v", err)
	}
	return logger
}
