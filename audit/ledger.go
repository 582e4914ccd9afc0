// Package audit keeps the append-only trail of catalog-affecting actions.
// Records accumulate in memory during a pipeline run and are flushed to a
// fixed table in the audit extract file at the end of the run. Audit capture
// must never be able to abort the operation it is observing: every path in
// here swallows its own failures.
package audit

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/refreshbot/extract-refresher/extract"
)

// TableName is the fixed table the trail is persisted to.
const TableName = "Extract"

// TableWriter is the slice of the extract connection the ledger writes
// through.
type TableWriter interface {
	WriteRows(ds *extract.Dataset, tableName string, mode extract.WriteMode) error
	Close() error
}

// Ledger buffers audit actions for one pipeline run and owns the writable
// connection to the audit extract file. The ledger is the engine's last
// disposer: closing it releases the engine reference it holds, so the flush
// is guaranteed to happen before the backend goes away.
type Ledger struct {
	writer TableWriter
	engine *extract.Engine
	logger *zap.Logger

	mu      sync.Mutex
	records []Action
}

var (
	ledgerMu sync.Mutex
	ledger   *Ledger
)

// OpenLedger opens the ledger against the fixed audit file location. At most
// one ledger is live per process: a second call returns the running instance
// without reinitializing its buffer.
func OpenLedger(eng *extract.Engine, filePath string, logger *zap.Logger) (*Ledger, error) {
	ledgerMu.Lock()
	defer ledgerMu.Unlock()

	if ledger != nil {
		logger.Debug("reusing open audit ledger")
		return ledger, nil
	}

	logger.Debug("initializing audit ledger", zap.String("audit_file", filePath))
	conn, err := eng.OpenConnection(filePath, extract.ModeCreateIfMissing)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	ledger = &Ledger{
		writer: conn,
		engine: eng,
		logger: logger,
	}
	return ledger, nil
}

// Record appends one action to the in-memory buffer. It never fails the
// caller: any panic while appending is recovered and logged.
func (l *Ledger) Record(a Action) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("unable to append audit record", zap.Any("panic", r))
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, a)
}

// Outcome is what an audited operation hands back across the capture
// boundary: its result, and the action describing the catalog effect when
// there was one. A nil Action means there is nothing to audit.
type Outcome struct {
	Value  any
	Action *Action
}

// Wrap runs an operation inside the capture boundary. An outcome carrying an
// action causes exactly one Record call; a bare outcome is forwarded
// unchanged with a debug note. An error or panic escaping the operation is
// logged and swallowed - the boundary itself never fails, and the caller
// receives nil in that case.
func (l *Ledger) Wrap(name string, op func() (Outcome, error)) (value any) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("unable to audit operation",
				zap.String("operation", name), zap.Any("panic", r))
			value = nil
		}
	}()

	l.logger.Debug("auditing operation", zap.String("operation", name))

	out, err := op()
	if err != nil {
		l.logger.Error("audited operation failed",
			zap.String("operation", name), zap.Error(err))
		return nil
	}

	if out.Action == nil {
		l.logger.Debug("operation produced nothing to audit", zap.String("operation", name))
		return out.Value
	}

	l.Record(*out.Action)
	return out.Value
}

// Len returns the number of buffered records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Flush materializes the buffer as a dataset and appends it to the audit
// table. An empty buffer performs no write and creates no table. The buffer
// is cleared on success.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	records := l.records
	l.mu.Unlock()

	if len(records) == 0 {
		l.logger.Debug("no audit records to persist")
		return nil
	}

	l.logger.Info("saving audit records", zap.Int("count", len(records)))

	ds := buildDataset(records)
	if err := l.writer.WriteRows(ds, TableName, extract.WriteAppend); err != nil {
		return fmt.Errorf("failed to persist audit records: %w", err)
	}

	l.mu.Lock()
	l.records = nil
	l.mu.Unlock()
	return nil
}

// Close releases the audit file connection and the engine reference the
// ledger holds. The ledger must be closed after Flush and before anything
// else tears the engine down.
func (l *Ledger) Close() error {
	ledgerMu.Lock()
	if ledger == l {
		ledger = nil
	}
	ledgerMu.Unlock()

	err := l.writer.Close()
	if l.engine != nil {
		if engErr := l.engine.Close(); engErr != nil && err == nil {
			err = engErr
		}
	}
	return err
}

func buildDataset(records []Action) *extract.Dataset {
	ds := extract.NewDataset([]extract.Column{
		{Name: "timestamp", Type: extract.TypeTimestamp},
		{Name: "site_id", Type: extract.TypeText},
		{Name: "project_name", Type: extract.TypeText},
		{Name: "project_id", Type: extract.TypeText},
		{Name: "object_name", Type: extract.TypeText},
		{Name: "object_id", Type: extract.TypeText},
		{Name: "object_kind", Type: extract.TypeText},
		{Name: "owner_name", Type: extract.TypeText},
		{Name: "owner_id", Type: extract.TypeText},
		{Name: "file_path", Type: extract.TypeText},
		{Name: "action_type", Type: extract.TypeText},
		{Name: "action_log", Type: extract.TypeText},
	})

	for _, rec := range records {
		_ = ds.AppendRow(
			rec.Timestamp,
			rec.SiteID,
			rec.ProjectName,
			rec.ProjectID,
			rec.ObjectName,
			rec.ObjectID,
			string(rec.ObjectKind),
			rec.OwnerName,
			rec.OwnerID,
			rec.FilePath,
			rec.ActionType,
			rec.ActionLog,
		)
	}
	return ds
}
