// Package extract owns the local columnar extract backend and the files
// written through it. DuckDB is the backing engine: one backend handle per
// process, file-backed databases, an "Extract" schema, and transactional
// batch writes derived from a typed dataset.
package extract

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DefaultSchema is the schema every extract table is created under.
const DefaultSchema = "Extract"

// Params configures the extract backend. The diagnostic log settings bound
// the engine's own event logs, not the application log.
type Params struct {
	// LogDir is where the backend writes its diagnostic logs.
	LogDir string
	// LogFileMaxCount bounds the number of rotated diagnostic log files.
	LogFileMaxCount int
	// LogFileSizeLimitMB bounds the size of each diagnostic log file.
	LogFileSizeLimitMB int
}

// ApplyDefaults fills in default values for unset fields.
func (p *Params) ApplyDefaults() {
	if p.LogFileMaxCount == 0 {
		p.LogFileMaxCount = 2
	}
	if p.LogFileSizeLimitMB == 0 {
		p.LogFileSizeLimitMB = 100
	}
}

// Engine is the process-wide extract backend handle. The underlying engine
// does not tolerate two live backends in one process, so OpenEngine hands out
// a reference-counted shared handle instead of starting a second one. The
// owner that opened the engine last to release it shuts the backend down.
type Engine struct {
	params Params
	logger *zap.Logger

	mu     sync.Mutex
	refs   int
	closed bool
	conns  map[*Connection]struct{}
}

var (
	engineMu sync.Mutex
	engine   *Engine
)

// OpenEngine returns the live backend handle, starting one if none is
// running. Calling it while an engine is alive bumps the reference count and
// returns the same handle; the two never coexist.
func OpenEngine(params Params, logger *zap.Logger) *Engine {
	engineMu.Lock()
	defer engineMu.Unlock()

	if engine != nil {
		engine.mu.Lock()
		engine.refs++
		refs := engine.refs
		engine.mu.Unlock()
		logger.Debug("reusing running extract backend", zap.Int("refs", refs))
		return engine
	}

	params.ApplyDefaults()
	logger.Info("starting extract backend",
		zap.String("log_dir", params.LogDir),
		zap.Int("log_file_max_count", params.LogFileMaxCount),
		zap.Int("log_file_size_limit_mb", params.LogFileSizeLimitMB))

	engine = &Engine{
		params: params,
		logger: logger,
		refs:   1,
		conns:  make(map[*Connection]struct{}),
	}
	return engine
}

// Close releases one reference. When the last reference is released the
// backend shuts down: any connections still open are closed first, then the
// handle is retired so a later OpenEngine starts fresh.
func (e *Engine) Close() error {
	engineMu.Lock()
	defer engineMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.refs--
	if e.refs > 0 {
		refs := e.refs
		e.mu.Unlock()
		e.logger.Debug("released extract backend reference", zap.Int("refs", refs))
		return nil
	}
	e.closed = true
	open := make([]*Connection, 0, len(e.conns))
	for c := range e.conns {
		open = append(open, c)
	}
	e.mu.Unlock()

	var firstErr error
	for _, c := range open {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	engine = nil
	e.logger.Info("extract backend shut down")
	if firstErr != nil {
		return fmt.Errorf("closing connections during shutdown: %w", firstErr)
	}
	return nil
}

func (e *Engine) register(c *Connection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns[c] = struct{}{}
}

func (e *Engine) unregister(c *Connection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, c)
}
