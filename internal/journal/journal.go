// ABOUTME: SQLite-backed journal of quorum resolutions using modernc.org/sqlite
// ABOUTME: Creates its schema on open and lists resolutions newest first with optional filters

package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested resolution does not exist.
var ErrNotFound = errors.New("not found")

// timeFormat is fixed width so stored timestamps order correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Resolution is a single quorum crossing.
type Resolution struct {
	ID         string    // UUID v4
	RunID      string    // ingest run that produced it
	Key        string    // accumulator key
	Values     []string  // values held when quorum was reached
	Quorum     int       // threshold in force at the time
	ResolvedAt time.Time // when it happened
}

// Filter specifies filtering options for listing resolutions.
type Filter struct {
	Key   *string // only this key
	RunID *string // only this run
	Since *time.Time
	Limit int // max results (default 100, max 1000)
}

// Journal is a resolution log stored in SQLite. It is safe for concurrent use.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates a journal at path, creating parent directories and
// the schema as needed.
func Open(path string) (*Journal, error) {
	logger := slog.Default().With("component", "journal")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	j := &Journal{db: db, logger: logger}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("journal opened", "path", path)
	return j, nil
}

func (j *Journal) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS resolutions (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			key TEXT NOT NULL,
			values_json TEXT NOT NULL,
			quorum INTEGER NOT NULL,
			resolved_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_resolutions_key
			ON resolutions(key, resolved_at);

		CREATE INDEX IF NOT EXISTS idx_resolutions_run
			ON resolutions(run_id, resolved_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	j.logger.Info("closing journal")
	return j.db.Close()
}

// Record appends r to the journal. ID and ResolvedAt are generated if unset.
func (j *Journal) Record(ctx context.Context, r *Resolution) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.ResolvedAt.IsZero() {
		r.ResolvedAt = time.Now().UTC()
	}

	values := r.Values
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshaling values: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO resolutions (id, run_id, key, values_json, quorum, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.RunID, r.Key, string(data), r.Quorum, r.ResolvedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("inserting resolution: %w", err)
	}

	j.logger.Debug("recorded resolution", "id", r.ID, "key", r.Key, "values", len(r.Values))
	return nil
}

// Get returns the resolution with the given ID.
func (j *Journal) Get(ctx context.Context, id string) (*Resolution, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, run_id, key, values_json, quorum, resolved_at
		FROM resolutions WHERE id = ?
	`, id)

	r, err := scanResolution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const listQuery = `
	SELECT id, run_id, key, values_json, quorum, resolved_at
	FROM resolutions
	WHERE (? IS NULL OR key = ?)
	  AND (? IS NULL OR run_id = ?)
	  AND (? IS NULL OR resolved_at >= ?)
	ORDER BY resolved_at DESC, rowid DESC
	LIMIT ?
`

// List returns resolutions matching f, newest first.
func (j *Journal) List(ctx context.Context, f Filter) ([]Resolution, error) {
	var since *string
	if f.Since != nil {
		s := f.Since.UTC().Format(timeFormat)
		since = &s
	}

	rows, err := j.db.QueryContext(ctx, listQuery,
		f.Key, f.Key,
		f.RunID, f.RunID,
		since, since,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying resolutions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	resolutions := []Resolution{}
	for rows.Next() {
		r, err := scanResolution(rows)
		if err != nil {
			return nil, err
		}
		resolutions = append(resolutions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating resolutions: %w", err)
	}
	return resolutions, nil
}

// normalizeLimit applies default (100) and cap (1000) to a list limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

func scanResolution(scanner interface{ Scan(dest ...any) error }) (Resolution, error) {
	var r Resolution
	var valuesJSON, resolvedAt string

	if err := scanner.Scan(&r.ID, &r.RunID, &r.Key, &valuesJSON, &r.Quorum, &resolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scanning resolution: %w", err)
	}

	if err := json.Unmarshal([]byte(valuesJSON), &r.Values); err != nil {
		return r, fmt.Errorf("unmarshaling values: %w", err)
	}

	var err error
	r.ResolvedAt, err = time.Parse(timeFormat, resolvedAt)
	if err != nil {
		return r, fmt.Errorf("parsing timestamp: %w", err)
	}
	return r, nil
}
