package extract

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"
)

// Mode selects how a connection opens its target file.
type Mode int

const (
	// ModeReadOnly opens an existing file; a missing file is an error.
	ModeReadOnly Mode = iota
	// ModeCreateIfMissing opens the file, creating it when absent.
	ModeCreateIfMissing
)

// WriteMode selects how WriteRows treats existing table contents.
type WriteMode int

const (
	// WriteAppend adds rows to an existing or newly created table.
	WriteAppend WriteMode = iota
	// WriteOverwrite clears the table before inserting.
	WriteOverwrite
)

// Connection is one open extract file under the backend. Each connection is
// single-writer: the engine does not handle concurrent writes well, so the
// pool is pinned to one underlying connection.
type Connection struct {
	engine *Engine
	db     *sql.DB
	path   string
	mode   Mode
	logger *zap.Logger
	tables map[string]struct{}
	closed bool
}

// OpenConnection opens an extract file through the backend. Existing table
// names in the Extract schema are enumerated into a cache at open time.
func (e *Engine) OpenConnection(path string, mode Mode) (*Connection, error) {
	if mode == ModeReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchFile, path)
		}
	}

	dsn := path
	if mode == ModeReadOnly {
		dsn += "?access_mode=read_only"
	}

	e.logger.Debug("opening extract file",
		zap.String("path", path),
		zap.Bool("read_only", mode == ModeReadOnly))

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open extract file %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping extract file %s: %w", path, err)
	}

	conn := &Connection{
		engine: e,
		db:     db,
		path:   path,
		mode:   mode,
		logger: e.logger.With(zap.String("extract_file", path)),
	}
	if err := conn.loadTableNames(); err != nil {
		db.Close()
		return nil, err
	}

	e.register(conn)
	return conn, nil
}

// Close closes the file connection. The backend itself stays up; it is shut
// down once, by its top-level owner.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.engine.unregister(c)
	c.logger.Debug("closing extract file connection")
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close extract file %s: %w", c.path, err)
	}
	return nil
}

// Path returns the file path this connection is bound to.
func (c *Connection) Path() string {
	return c.path
}

// TableExists reports whether the named table was present in the Extract
// schema when the connection was opened or was created through it since.
func (c *Connection) TableExists(tableName string) bool {
	_, ok := c.tables[tableName]
	return ok
}

// TableNames returns the cached table names of the Extract schema.
func (c *Connection) TableNames() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}

func (c *Connection) loadTableNames() error {
	c.tables = make(map[string]struct{})

	rows, err := c.db.Query(
		`SELECT table_name FROM information_schema.tables WHERE table_schema = ?`,
		DefaultSchema)
	if err != nil {
		return fmt.Errorf("failed to enumerate tables in %s: %w", c.path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		c.tables[name] = struct{}{}
	}
	return rows.Err()
}

// CreateTable creates the schema if absent, then a table whose columns are
// derived from the dataset's column types in dataset order. An empty dataset
// is rejected.
func (c *Connection) CreateTable(ds *Dataset, tableName, schemaName string) error {
	if ds == nil || ds.Empty() {
		return ErrEmptyDataset
	}
	if schemaName == "" {
		schemaName = DefaultSchema
	}

	if _, err := c.db.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, quoteIdent(schemaName))); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schemaName, err)
	}

	defs := make([]string, 0, len(ds.Columns()))
	for _, col := range ds.Columns() {
		defs = append(defs, fmt.Sprintf("%s %s", quoteIdent(col.Name), col.Type.sqlType()))
	}
	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (%s)`,
		quoteIdent(schemaName), quoteIdent(tableName), strings.Join(defs, ", "))

	if _, err := c.db.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create table %s.%s: %w", schemaName, tableName, err)
	}

	c.tables[tableName] = struct{}{}
	c.logger.Debug("table ready",
		zap.String("schema", schemaName),
		zap.String("table", tableName),
		zap.Int("columns", len(ds.Columns())))
	return nil
}

// WriteRows writes the dataset's rows into the named table in the Extract
// schema, creating the table first when it does not exist. In overwrite mode
// existing rows are deleted before inserting. The whole call runs inside one
// transaction: either all rows land or none do.
func (c *Connection) WriteRows(ds *Dataset, tableName string, mode WriteMode) error {
	if ds == nil || ds.Empty() {
		return ErrEmptyDataset
	}

	if !c.TableExists(tableName) {
		if err := c.CreateTable(ds, tableName, DefaultSchema); err != nil {
			return err
		}
	}

	tx, err := c.db.Begin()
	if err != nil {
		return &WriteError{Table: tableName, Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}
	defer tx.Rollback() // Rollback if not committed

	qualified := fmt.Sprintf("%s.%s", quoteIdent(DefaultSchema), quoteIdent(tableName))

	if mode == WriteOverwrite {
		res, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s`, qualified))
		if err != nil {
			return &WriteError{Table: tableName, Err: fmt.Errorf("failed to clear table: %w", err)}
		}
		deleted, _ := res.RowsAffected()
		c.logger.Info("trimmed extract table before overwrite",
			zap.String("table", tableName),
			zap.Int64("rows_deleted", deleted))
	}

	placeholders := make([]string, len(ds.Columns()))
	names := make([]string, len(ds.Columns()))
	for i, col := range ds.Columns() {
		placeholders[i] = "?"
		names[i] = quoteIdent(col.Name)
	}

	stmt, err := tx.Prepare(fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		qualified, strings.Join(names, ", "), strings.Join(placeholders, ", ")))
	if err != nil {
		return &WriteError{Table: tableName, Err: fmt.Errorf("failed to prepare insert: %w", err)}
	}
	defer stmt.Close()

	for i, row := range ds.Rows() {
		if _, err := stmt.Exec(row...); err != nil {
			return &WriteError{Table: tableName, Err: fmt.Errorf("failed to insert row %d: %w", i, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &WriteError{Table: tableName, Err: fmt.Errorf("failed to commit: %w", err)}
	}

	c.logger.Info("wrote rows to extract table",
		zap.String("table", tableName),
		zap.Int("rows", ds.NumRows()),
		zap.Bool("overwrite", mode == WriteOverwrite))
	return nil
}

// RowCount returns the current number of rows in the named Extract table.
func (c *Connection) RowCount(tableName string) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s.%s`, quoteIdent(DefaultSchema), quoteIdent(tableName))
	if err := c.db.QueryRow(query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", tableName, err)
	}
	return count, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
