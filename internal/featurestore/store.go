// Package featurestore persists engineered feature frames as versioned
// parquet files and prepares them for training.
//
// Layout under the base directory:
//
//	processed/<name>_<YYYYMMDD_HHMMSS>.parquet
//	metadata/<name>_<YYYYMMDD_HHMMSS>_metadata.json
//	raw/
//
// A version is never rewritten once saved. A save that lands on an existing
// stamp takes the next free second.
package featurestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"

	"github.com/okian/pitwall/internal/domain/table"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// Latest selects the newest version of a feature set.
const Latest = "latest"

const (
	timestampLayout = "20060102_150405"
	processedDir    = "processed"
	metadataDir     = "metadata"
	rawDir          = "raw"
	parquetExt      = ".parquet"
	metadataSuffix  = "_metadata.json"
	bytesPerMB      = 1024 * 1024
	stagingTable    = "feature_set"
)

var (
	nameRe    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
	versionRe = regexp.MustCompile(`^\d{8}_\d{6}$`)
	fileRe    = regexp.MustCompile(`^(.+)_(\d{8}_\d{6})\.parquet$`)
)

// Metadata describes one saved version.
type Metadata struct {
	Name        string            `json:"name"`
	Timestamp   string            `json:"timestamp"`
	Rows        int               `json:"n_rows"`
	Columns     int               `json:"n_columns"`
	ColumnNames []string          `json:"columns"`
	ColumnTypes map[string]string `json:"dtypes"`
	Params      map[string]any    `json:"parameters,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Path        string            `json:"path"`
}

// Entry is one line of a store listing.
type Entry struct {
	Name      string  `json:"name"`
	Timestamp string  `json:"timestamp"`
	Filename  string  `json:"filename"`
	SizeBytes int64   `json:"size_bytes"`
	SizeMB    float64 `json:"size_mb"`
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock sets the time source used to stamp new versions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(s *Store) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// Store is a local, single-writer feature store.
type Store struct {
	base   string
	now    func() time.Time
	logger logger.Logger
}

// NewStore creates the directory layout under base.
func NewStore(base string, opts ...Option) (*Store, error) {
	s := &Store{base: base, now: time.Now, logger: logger.NamedOrNop("featurestore")}
	for _, opt := range opts {
		opt(s)
	}
	for _, dir := range []string{processedDir, metadataDir, rawDir} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

// Base returns the store's root directory.
func (s *Store) Base() string { return s.base }

// Save writes f as a new version of name and returns the parquet path.
func (s *Store) Save(ctx context.Context, f *table.Frame, name string, params map[string]any) (string, error) {
	start := time.Now()
	defer func() { metrics.RecordFeatureStoreLatency("save", float64(time.Since(start).Milliseconds())) }()

	if err := checkName(name); err != nil {
		return "", err
	}
	if f == nil || f.Len() == 0 || len(f.Columns()) == 0 {
		return "", ErrEmptyFeatureSet
	}

	created := s.now()
	ts, err := s.nextVersion(name, created)
	if err != nil {
		return "", err
	}
	path := s.parquetPath(name, ts)

	tmp := path + ".tmp"
	if err := writeParquet(ctx, f, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("publish %s: %w", filepath.Base(path), err)
	}

	meta := Metadata{
		Name:        name,
		Timestamp:   ts,
		Rows:        f.Len(),
		Columns:     len(f.Columns()),
		ColumnNames: f.Columns(),
		ColumnTypes: make(map[string]string, len(f.Columns())),
		Params:      params,
		CreatedAt:   created,
		Path:        path,
	}
	for _, c := range meta.ColumnNames {
		k, _ := f.Kind(c)
		meta.ColumnTypes[c] = k.String()
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(s.metadataPath(name, ts), b, 0o644); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}

	metrics.RecordFeatureSetSaved()
	s.logger.Info(ctx, "feature set saved",
		logger.String("name", name),
		logger.String("version", ts),
		logger.Int("rows", meta.Rows),
		logger.Int("columns", meta.Columns),
		logger.String("path", path))
	return path, nil
}

// Load reads one version of name. version is a timestamp or Latest.
func (s *Store) Load(ctx context.Context, name, version string) (*table.Frame, error) {
	start := time.Now()
	defer func() { metrics.RecordFeatureStoreLatency("load", float64(time.Since(start).Milliseconds())) }()

	ts, err := s.resolve(name, version)
	if err != nil {
		return nil, err
	}
	f, err := readParquet(ctx, s.parquetPath(name, ts))
	if err != nil {
		return nil, fmt.Errorf("read %s_%s: %w", name, ts, err)
	}
	s.logger.Debug(ctx, "feature set loaded",
		logger.String("name", name),
		logger.String("version", ts),
		logger.Int("rows", f.Len()))
	return f, nil
}

// LoadMetadata reads the metadata record of one version of name.
func (s *Store) LoadMetadata(_ context.Context, name, version string) (*Metadata, error) {
	ts, err := s.resolve(name, version)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.metadataPath(name, ts))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: metadata for %s_%s", ErrFeatureSetNotFound, name, ts)
	}
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata %s_%s: %w", name, ts, err)
	}
	return &meta, nil
}

// List returns every saved version, newest first.
func (s *Store) List(_ context.Context) ([]Entry, error) {
	dirents, err := os.ReadDir(filepath.Join(s.base, processedDir))
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, de := range dirents {
		m := fileRe.FindStringSubmatch(de.Name())
		if de.IsDir() || m == nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Name:      m[1],
			Timestamp: m[2],
			Filename:  de.Name(),
			SizeBytes: info.Size(),
			SizeMB:    math.Round(float64(info.Size())/bytesPerMB*100) / 100,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) resolve(name, version string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if version == "" || version == Latest {
		latest, err := s.latestVersion(name)
		if err != nil {
			return "", err
		}
		if latest == "" {
			return "", fmt.Errorf("%w: %s", ErrFeatureSetNotFound, name)
		}
		return latest, nil
	}
	if !versionRe.MatchString(version) {
		return "", fmt.Errorf("%w: %s version %q", ErrFeatureSetNotFound, name, version)
	}
	if _, err := os.Stat(s.parquetPath(name, version)); err != nil {
		return "", fmt.Errorf("%w: %s_%s", ErrFeatureSetNotFound, name, version)
	}
	return version, nil
}

// latestVersion returns the largest saved timestamp of name, or "" when none
// exists.
func (s *Store) latestVersion(name string) (string, error) {
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `_(\d{8}_\d{6})\.parquet$`)
	dirents, err := os.ReadDir(filepath.Join(s.base, processedDir))
	if err != nil {
		return "", err
	}
	latest := ""
	for _, de := range dirents {
		if m := re.FindStringSubmatch(de.Name()); m != nil && m[1] > latest {
			latest = m[1]
		}
	}
	return latest, nil
}

// nextVersion stamps a new version of name at now, moved past the newest
// existing stamp so versions stay unique and Latest keeps returning the most
// recent save.
func (s *Store) nextVersion(name string, now time.Time) (string, error) {
	ts := now.Format(timestampLayout)
	latest, err := s.latestVersion(name)
	if err != nil {
		return "", err
	}
	if latest < ts {
		return ts, nil
	}
	prev, err := time.ParseInLocation(timestampLayout, latest, now.Location())
	if err != nil {
		return "", fmt.Errorf("parse version %s: %w", latest, err)
	}
	return prev.Add(time.Second).Format(timestampLayout), nil
}

func (s *Store) parquetPath(name, ts string) string {
	return filepath.Join(s.base, processedDir, name+"_"+ts+parquetExt)
}

func (s *Store) metadataPath(name, ts string) string {
	return filepath.Join(s.base, metadataDir, name+"_"+ts+metadataSuffix)
}

func checkName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func openDuckDB(ctx context.Context) (*sql.DB, *sql.Conn, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, nil, fmt.Errorf("open duckdb: %w", err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("duckdb conn: %w", err)
	}
	return db, conn, nil
}

func writeParquet(ctx context.Context, f *table.Frame, path string) (err error) {
	db, conn, err := openDuckDB(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
		_ = db.Close()
	}()

	cols := f.Columns()
	defs := make([]string, len(cols))
	marks := make([]string, len(cols))
	floats := make([][]float64, len(cols))
	texts := make([][]string, len(cols))
	for i, c := range cols {
		k, _ := f.Kind(c)
		switch k {
		case table.Float:
			defs[i] = quoteIdent(c) + " DOUBLE"
			floats[i], _ = f.Floats(c)
		default:
			defs[i] = quoteIdent(c) + " VARCHAR"
			texts[i], _ = f.Strings(c)
		}
		marks[i] = "?"
	}

	if _, err := conn.ExecContext(ctx, "CREATE TABLE "+stagingTable+" ("+strings.Join(defs, ", ")+")"); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+stagingTable+" VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(cols))
	for row := 0; row < f.Len(); row++ {
		for i := range cols {
			if floats[i] != nil {
				v := floats[i][row]
				if math.IsNaN(v) {
					args[i] = nil
				} else {
					args[i] = v
				}
				continue
			}
			args[i] = texts[i][row]
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", row, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	copySQL := fmt.Sprintf("COPY %s TO %s (FORMAT PARQUET)", stagingTable, quoteLiteral(path))
	if _, err = conn.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("copy to parquet: %w", err)
	}
	return nil
}

func readParquet(ctx context.Context, path string) (*table.Frame, error) {
	db, conn, err := openDuckDB(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = conn.Close()
		_ = db.Close()
	}()

	rows, err := conn.QueryContext(ctx, "SELECT * FROM read_parquet("+quoteLiteral(path)+")")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	numeric := make([]bool, len(types))
	floats := make([][]float64, len(types))
	texts := make([][]string, len(types))
	dest := make([]any, len(types))
	for i, t := range types {
		numeric[i] = isNumeric(t.DatabaseTypeName())
		if numeric[i] {
			dest[i] = new(sql.NullFloat64)
		} else {
			dest[i] = new(sql.NullString)
		}
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i := range dest {
			if numeric[i] {
				v := dest[i].(*sql.NullFloat64)
				if v.Valid {
					floats[i] = append(floats[i], v.Float64)
				} else {
					floats[i] = append(floats[i], math.NaN())
				}
				continue
			}
			texts[i] = append(texts[i], dest[i].(*sql.NullString).String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	n := 0
	if len(types) > 0 {
		if numeric[0] {
			n = len(floats[0])
		} else {
			n = len(texts[0])
		}
	}
	f := table.New(n)
	for i, t := range types {
		if numeric[i] {
			f, err = f.WithFloats(t.Name(), pad(floats[i], n))
		} else {
			f, err = f.WithStrings(t.Name(), padText(texts[i], n))
		}
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

func isNumeric(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "DOUBLE", "FLOAT", "REAL", "INTEGER", "BIGINT", "SMALLINT", "TINYINT",
		"UINTEGER", "UBIGINT", "USMALLINT", "UTINYINT":
		return true
	}
	return false
}

// pad covers a zero-row read, where append never allocated.
func pad(v []float64, n int) []float64 {
	if v == nil {
		return make([]float64, n)
	}
	return v
}

func padText(v []string, n int) []string {
	if v == nil {
		return make([]string, n)
	}
	return v
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
