// Package pipeline sequences one refresh run: acquisition, extract write,
// publish, audit flush. Runs are strictly serialized; the extract backend
// tolerates exactly one writer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/refreshbot/extract-refresher/audit"
	"github.com/refreshbot/extract-refresher/catalog"
	"github.com/refreshbot/extract-refresher/config"
	"github.com/refreshbot/extract-refresher/extract"
	"github.com/refreshbot/extract-refresher/places"
)

// ErrRunInProgress signals that a refresh was requested while another run
// held the writer. The caller may retry once the active run finishes; the
// pipeline never interleaves two writers.
var ErrRunInProgress = errors.New("a refresh run is already in progress")

// State is a stage of the refresh run.
type State int

const (
	StateInit State = iota
	StateAuthenticated
	StateAcquired
	StateExtracted
	StatePublished
	StateAudited
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAuthenticated:
		return "authenticated"
	case StateAcquired:
		return "acquired"
	case StateExtracted:
		return "extracted"
	case StatePublished:
		return "published"
	case StateAudited:
		return "audited"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Report summarizes one refresh run.
type Report struct {
	RunID     string
	QueryText string
	State     State
	Rows      int
	Published bool
	StartedAt time.Time
	Duration  time.Duration
}

// Acquirer fetches external records for a query.
type Acquirer interface {
	FetchAll(ctx context.Context, queryText string) ([]places.Place, error)
}

// Session is the slice of the catalog session the pipeline drives.
type Session interface {
	ServerInfo(ctx context.Context) error
	SiteID() string
	SiteLUID() string
	PublishExtract(ctx context.Context, filePath, datasourceName, projectName string, overwrite bool) (catalog.Entity, bool)
	SignOut()
}

// SessionFactory opens an authenticated catalog session for one run.
type SessionFactory func(ctx context.Context) (Session, error)

// Notifier receives human-readable progress strings. Pushes are fire and
// forget: the pipeline never depends on delivery.
type Notifier interface {
	Push(message string)
}

// Runner owns the collaborators of the refresh pipeline and serializes runs.
type Runner struct {
	cfg      *config.Config
	logger   *zap.Logger
	engine   *extract.Engine
	acquirer Acquirer
	connect  SessionFactory
	notifier Notifier
	metrics  *Metrics

	runMu sync.Mutex
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithNotifier attaches a status push channel.
func WithNotifier(n Notifier) RunnerOption {
	return func(r *Runner) { r.notifier = n }
}

// WithMetricsRegistry registers the pipeline metrics on a non-default
// registry.
func WithMetricsRegistry(reg prometheus.Registerer) RunnerOption {
	return func(r *Runner) { r.metrics = NewMetrics(reg) }
}

// NewRunner wires a refresh pipeline. The engine handle is owned by the
// caller and must outlive the runner.
func NewRunner(cfg *config.Config, eng *extract.Engine, acquirer Acquirer, connect SessionFactory, logger *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		engine:   eng,
		acquirer: acquirer,
		connect:  connect,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(prometheus.DefaultRegisterer)
	}
	return r
}

// Run executes one refresh for the given query text. A second call while a
// run is active is rejected with ErrRunInProgress: the run lock is held from
// before the extract write until the audit flush has finished, and rejecting
// early keeps two writers from ever queueing up on the backend.
func (r *Runner) Run(ctx context.Context, queryText string) (*Report, error) {
	if !r.runMu.TryLock() {
		r.metrics.RunsRejectedBusy.Inc()
		return nil, ErrRunInProgress
	}
	defer r.runMu.Unlock()

	report := &Report{
		RunID:     uuid.NewString(),
		QueryText: queryText,
		State:     StateInit,
		StartedAt: time.Now(),
	}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	logger := r.logger.With(zap.String("run_id", report.RunID), zap.String("query", queryText))
	r.metrics.RunsStarted.Inc()

	if err := r.cfg.Validate(); err != nil {
		return r.fail(report, logger, err)
	}

	logger.Info("refreshing extract", zap.String("query", queryText))

	session, err := r.connect(ctx)
	if err != nil {
		return r.fail(report, logger, fmt.Errorf("authentication failed: %w", err))
	}
	defer session.SignOut()
	report.State = StateAuthenticated

	if err := session.ServerInfo(ctx); err != nil {
		logger.Warn("unable to query catalog server info", zap.Error(err))
	}

	r.push("Refreshing Extract Data Based on Query: [" + queryText + "]...")
	r.push("Querying Places API...")

	records, err := r.acquirer.FetchAll(ctx, queryText)
	if err != nil {
		return r.fail(report, logger, fmt.Errorf("acquisition failed: %w", err))
	}
	ds := places.Normalize(records, queryText)
	report.Rows = ds.NumRows()
	report.State = StateAcquired
	logger.Info("acquired records", zap.Int("rows", report.Rows))

	// The ledger takes its own engine reference and releases it on Close,
	// so the flush always happens before the backend can go away.
	ledgerEngine := extract.OpenEngine(extract.Params{LogDir: r.cfg.Paths.LogDir}, logger)
	ledger, err := audit.OpenLedger(ledgerEngine, r.auditFilePath(), logger)
	if err != nil {
		ledgerEngine.Close()
		return r.fail(report, logger, fmt.Errorf("audit ledger unavailable: %w", err))
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			logger.Warn("failed to close audit ledger", zap.Error(err))
		}
	}()

	r.push("Creating New Extract File...")
	extractPath := r.extractFilePath()
	if err := r.writeExtract(ds, extractPath, logger); err != nil {
		return r.fail(report, logger, err)
	}
	report.State = StateExtracted

	report.Published = r.publish(ctx, ledger, session, extractPath, logger)
	if report.Published {
		report.State = StatePublished
		r.metrics.PublishSuccesses.Inc()
		r.push("Published Datasource as \"" + r.cfg.Target.DatasourceName + "\"...")
	} else {
		r.metrics.PublishFailures.Inc()
		logger.Warn("publish failed; continuing to persist the audit trail")
	}

	if err := ledger.Flush(); err != nil {
		logger.Error("unable to persist audit records", zap.Error(err))
	}
	report.State = StateAudited
	logger.Debug("audit trail persisted", zap.String("audit_file", r.auditFilePath()))

	report.State = StateDone
	logger.Info("refresh run completed",
		zap.Int("rows", report.Rows),
		zap.Bool("published", report.Published))
	r.push("Extract Task Completed")
	return report, nil
}

func (r *Runner) writeExtract(ds *extract.Dataset, path string, logger *zap.Logger) error {
	conn, err := r.engine.OpenConnection(path, extract.ModeCreateIfMissing)
	if err != nil {
		return fmt.Errorf("failed to open staging extract: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteRows(ds, r.cfg.Target.TableName, extract.WriteOverwrite); err != nil {
		return fmt.Errorf("extract write failed: %w", err)
	}
	r.metrics.RowsWritten.Add(float64(ds.NumRows()))
	logger.Info("extract file written",
		zap.String("path", path),
		zap.String("table", r.cfg.Target.TableName),
		zap.Int("rows", ds.NumRows()))
	return nil
}

func (r *Runner) publish(ctx context.Context, ledger *audit.Ledger, session Session, extractPath string, logger *zap.Logger) bool {
	value := ledger.Wrap("publish datasource", func() (audit.Outcome, error) {
		entity, ok := session.PublishExtract(ctx, extractPath,
			r.cfg.Target.DatasourceName, r.cfg.Target.ProjectName, true)
		if !ok {
			return audit.Outcome{Value: false}, nil
		}

		action := audit.NewAction(audit.ObjectDatasource, "Publish",
			fmt.Sprintf("Published extract as datasource %q to project %q", entity.Name, r.cfg.Target.ProjectName))
		action.SiteID = session.SiteLUID()
		action.ProjectName = r.cfg.Target.ProjectName
		action.ProjectID = entity.ProjectID
		action.ObjectName = entity.Name
		action.ObjectID = entity.ID
		action.OwnerName = entity.OwnerName
		action.OwnerID = entity.OwnerID
		action.FilePath = extractPath
		return audit.Outcome{Value: true, Action: &action}, nil
	})

	published, _ := value.(bool)
	return published
}

func (r *Runner) fail(report *Report, logger *zap.Logger, err error) (*Report, error) {
	report.State = StateFailed
	r.metrics.RunsFailed.Inc()
	logger.Error("refresh run failed", zap.Error(err))
	return report, err
}

func (r *Runner) push(message string) {
	if r.notifier == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Debug("status push failed", zap.Any("panic", p))
		}
	}()
	r.notifier.Push(message)
}

func (r *Runner) extractFilePath() string {
	return filepath.Join(r.cfg.Paths.StagingDir, r.cfg.Paths.ExtractFile)
}

func (r *Runner) auditFilePath() string {
	return filepath.Join(r.cfg.Paths.AuditDir, r.cfg.Paths.AuditFile)
}
