// Package table is the table-in-local-database storage backend: each
// version is loaded into a dedicated table inside a per-version SQLite file.
package table

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
	"github.com/lakeward/datasetstore/pkg/datasetstore/storage/container"
)

// Backend loads tabular payloads into per-version SQLite database files.
type Backend struct {
	baseDir string
	cipher  datasetstore.Cipher
	logger  *slog.Logger
}

// Config options for the table backend.
type Config struct {
	BaseDir string
	Cipher  datasetstore.Cipher
	Logger  *slog.Logger
}

// New creates a table storage backend rooted at BaseDir.
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{baseDir: config.BaseDir, cipher: config.Cipher, logger: logger}, nil
}

// Mode identifies this backend as the table representation.
func (b *Backend) Mode() datasetstore.StorageMode {
	return datasetstore.ModeTable
}

// Write parses the payload as tabular data, loads it into table
// {name}_v{version} inside a per-version database file, indexes the
// requested columns, then seals the database file in place. The
// uncompressed file is removed only after sealing succeeds.
func (b *Backend) Write(ctx context.Context, req datasetstore.WriteRequest) (*datasetstore.WriteResult, error) {
	fail := func(locator string, err error) (*datasetstore.WriteResult, error) {
		return nil, &datasetstore.StorageError{Mode: b.Mode(), Locator: locator, Op: "write", Err: err}
	}

	columns, rows, err := readRecords(req.SourcePath)
	if err != nil {
		return fail("", err)
	}

	tableName := fmt.Sprintf("%s_v%s", req.Name, req.Version)
	dbPath := filepath.Join(b.baseDir, "processed", req.Name, tableName+".db")
	locator := locatorFor(b.baseDir, dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fail(locator, err)
	}
	if err := b.load(ctx, dbPath, tableName, columns, rows, req.IndexColumns); err != nil {
		os.Remove(dbPath)
		return fail(locator, err)
	}

	if req.Encrypt && b.cipher == nil {
		b.logger.WarnContext(ctx, "encryption requested without a cipher; storing plaintext",
			"dataset", req.Name, "version", req.Version)
	}

	finalPath := dbPath
	compressed := false
	encrypted := false
	if req.Compress || (req.Encrypt && b.cipher != nil) {
		sealed, err := container.Seal(dbPath, dbPath, container.Options{
			Compress: req.Compress,
			Method:   string(req.Method),
			Encrypt:  req.Encrypt,
			Cipher:   b.cipher,
		})
		if err != nil {
			os.Remove(dbPath)
			return fail(locator, err)
		}
		if err := os.Remove(dbPath); err != nil {
			b.logger.WarnContext(ctx, "uncompressed database file not removed", "path", dbPath, "error", err)
		}
		finalPath = sealed.Path
		compressed = sealed.Compressed
		encrypted = sealed.Encrypted
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return fail(locator, err)
	}
	return &datasetstore.WriteResult{
		Locator:    locatorFor(b.baseDir, finalPath),
		Compressed: compressed,
		Encrypted:  encrypted,
		StoredSize: info.Size(),
	}, nil
}

// load creates the version table, bulk-inserts the rows in one transaction
// and indexes the requested columns.
func (b *Backend) load(ctx context.Context, dbPath, tableName string, columns []string, rows [][]string, indexColumns []string) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to create database file: %w", err)
	}
	defer db.Close()

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)",
		quoteIdent(tableName), strings.Join(quoted, " TEXT, ")+" TEXT")
	if _, err := db.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin load transaction: %w", err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)",
		quoteIdent(tableName), placeholders))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	for _, row := range rows {
		args := make([]any, len(columns))
		for i := range columns {
			if i < len(row) {
				args[i] = row[i]
			} else {
				args[i] = ""
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("failed to insert row: %w", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load transaction: %w", err)
	}

	for _, col := range indexColumns {
		if !contains(columns, col) {
			b.logger.Warn("index column not present in payload", "column", col, "table", tableName)
			continue
		}
		idx := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			quoteIdent("idx_"+tableName+"_"+col), quoteIdent(tableName), quoteIdent(col))
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to index column %q: %w", col, err)
		}
	}
	return nil
}

// Read streams the stored database file into dst, reversing the container
// layers.
func (b *Backend) Read(ctx context.Context, locator string, dst io.Writer) error {
	path := filepath.Join(b.baseDir, filepath.FromSlash(locator))
	if err := container.Open(path, dst, b.cipher); err != nil {
		return &datasetstore.StorageError{Mode: b.Mode(), Locator: locator, Op: "read", Err: err}
	}
	return nil
}

// Remove deletes the stored database file and tidies empty parent
// directories.
func (b *Backend) Remove(ctx context.Context, locator string) error {
	path := filepath.Join(b.baseDir, filepath.FromSlash(locator))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &datasetstore.StorageError{Mode: b.Mode(), Locator: locator, Op: "remove", Err: err}
	}
	if err := os.Remove(path); err != nil {
		return &datasetstore.StorageError{Mode: b.Mode(), Locator: locator, Op: "remove", Err: err}
	}
	cleanupEmptyDirectories(b.baseDir, filepath.Dir(path))
	return nil
}

// readRecords parses a CSV file or a JSON array of flat records into a
// column list and string rows.
func readRecords(path string) ([]string, [][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".json":
		return readJSONRecords(path)
	default:
		return nil, nil, fmt.Errorf("table storage requires a tabular payload, got %s", filepath.Ext(path))
	}
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open payload: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i, c := range header {
		if strings.TrimSpace(c) == "" {
			header[i] = fmt.Sprintf("col_%d", i)
		}
	}

	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		rows = append(rows, record)
	}
	return header, rows, nil
}

func readJSONRecords(path string) ([]string, [][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open payload: %w", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, nil, fmt.Errorf("payload is not an array of records: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("payload holds no records")
	}

	keys := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			keys[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(keys))
	for k := range keys {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			v, ok := rec[col]
			if !ok || v == nil {
				continue
			}
			if s, ok := v.(string); ok {
				row[i] = s
				continue
			}
			b, err := json.Marshal(v)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to encode field %q: %w", col, err)
			}
			row[i] = string(b)
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func locatorFor(baseDir, path string) string {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// cleanupEmptyDirectories removes empty dataset directories. The sweep stops
// before the first level under baseDir, so the fixed layout directories
// (processed/, archive/) survive the last delete.
func cleanupEmptyDirectories(baseDir, dir string) {
	for dir != baseDir && filepath.Dir(dir) != dir && filepath.Dir(dir) != baseDir {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) != 0 {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
