// Command extract-refresher refreshes a columnar extract from the Places
// search API and publishes it to a catalog server. It runs either as a
// one-shot refresh or as an HTTP service that triggers runs on demand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/refreshbot/extract-refresher/catalog"
	"github.com/refreshbot/extract-refresher/config"
	"github.com/refreshbot/extract-refresher/extract"
	"github.com/refreshbot/extract-refresher/notify"
	"github.com/refreshbot/extract-refresher/pipeline"
	"github.com/refreshbot/extract-refresher/places"
	"github.com/refreshbot/extract-refresher/server"
	"github.com/refreshbot/extract-refresher/workdir"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML configuration file")
		queryText  = flag.String("query", "", "query text for a one-shot refresh")
		serve      = flag.Bool("serve", false, "run the HTTP trigger server instead of a one-shot refresh")
		clean      = flag.Bool("clean", false, "remove stale files from the staging directory before running")
	)
	flag.Parse()

	if err := run(*configPath, *queryText, *serve, *clean); err != nil {
		fmt.Fprintf(os.Stderr, "extract-refresher: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, queryText string, serve, clean bool) error {
	// Local .env files supply credentials during development; absence is
	// not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyDefaults()

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := workdir.EnsureDirs(cfg.Paths.DataDir, cfg.Paths.StagingDir, cfg.Paths.AuditDir, cfg.Paths.LogDir); err != nil {
		return err
	}
	if clean {
		if err := workdir.CleanDir(cfg.Paths.StagingDir, logger); err != nil {
			return err
		}
	}

	engine := extract.OpenEngine(extract.Params{
		LogDir:             cfg.Paths.LogDir,
		LogFileMaxCount:    2,
		LogFileSizeLimitMB: 100,
	}, logger)
	defer engine.Close()

	acquirerOpts := []places.Option{}
	if cfg.Places.BaseURL != "" {
		acquirerOpts = append(acquirerOpts, places.WithBaseURL(cfg.Places.BaseURL))
	}
	acquirer := places.NewClient(cfg.Places.APIKey, logger, acquirerOpts...)

	connect := func(ctx context.Context) (pipeline.Session, error) {
		return catalog.Connect(ctx, cfg.Catalog.ServerURL, cfg.Catalog.SiteID, catalog.Credentials{
			Username:    cfg.Catalog.Username,
			Password:    cfg.Catalog.Password,
			TokenID:     cfg.Catalog.TokenID,
			TokenSecret: cfg.Catalog.TokenSecret,
		}, logger)
	}

	mailer := notify.NewMailer(cfg.Email.Enabled, cfg.Email.SMTPHost, cfg.Email.SMTPPort,
		cfg.Email.Sender, cfg.Email.Recipients, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serve {
		hub := server.NewHub(logger)
		runner := pipeline.NewRunner(cfg, engine, acquirer, connect, logger,
			pipeline.WithNotifier(hub))
		srv := server.New(&mailingRefresher{runner: runner, mailer: mailer}, hub, logger, nil)
		return srv.ListenAndServe(ctx, cfg.Server.ListenAddr)
	}

	if queryText == "" {
		return fmt.Errorf("either -query or -serve is required")
	}

	runner := pipeline.NewRunner(cfg, engine, acquirer, connect, logger)
	report, err := runner.Run(ctx, queryText)
	if err != nil {
		return err
	}
	sendReportMail(mailer, report)

	logger.Info("refresh finished",
		zap.String("run_id", report.RunID),
		zap.Int("rows", report.Rows),
		zap.Bool("published", report.Published),
		zap.Duration("duration", report.Duration),
		zap.String("extract_file", filepath.Join(cfg.Paths.StagingDir, cfg.Paths.ExtractFile)))
	return nil
}

// mailingRefresher sends a completion mail after every successful run
// triggered over HTTP.
type mailingRefresher struct {
	runner *pipeline.Runner
	mailer *notify.Mailer
}

func (m *mailingRefresher) Run(ctx context.Context, queryText string) (*pipeline.Report, error) {
	report, err := m.runner.Run(ctx, queryText)
	if err == nil {
		sendReportMail(m.mailer, report)
	}
	return report, err
}

func sendReportMail(mailer *notify.Mailer, report *pipeline.Report) {
	subject := fmt.Sprintf("Extract refresh completed for %q", report.QueryText)
	body := fmt.Sprintf("Run %s finished in state %s.\nRows written: %d\nPublished: %t\nDuration: %s\n",
		report.RunID, report.State, report.Rows, report.Published, report.Duration)
	// Mail is best effort; failures are already logged by the mailer.
	_ = mailer.Send(subject, body)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
