package audit

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists journal events in a SQLite database.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	dbPath string
}

// Open opens or creates the journal database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	// One writer goroutine; a single connection also keeps :memory:
	// databases coherent in tests.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-16000", // 16MB cache
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{conn: conn, logger: logger, dbPath: path}
	if err := s.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	logger.Debug("opened journal", "path", path)
	return s, nil
}

func (s *Store) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sync_id INTEGER NOT NULL,
			session TEXT NOT NULL,
			username TEXT NOT NULL,
			kind TEXT NOT NULL,
			entry_kind TEXT NOT NULL,
			entry TEXT NOT NULL,
			class TEXT NOT NULL,
			before_name TEXT,
			target_name TEXT,
			access TEXT,
			docs TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_changes_username ON changes(username);
		CREATE INDEX IF NOT EXISTS idx_changes_class ON changes(class);
		CREATE INDEX IF NOT EXISTS idx_changes_created_at ON changes(created_at DESC);

		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);
		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Record inserts ev and returns its row id.
func (s *Store) Record(ev Event) (int64, error) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	res, err := s.conn.Exec(`
		INSERT INTO changes (sync_id, session, username, kind, entry_kind, entry, class,
			before_name, target_name, access, docs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.SyncID,
		ev.Session,
		ev.User,
		ev.Kind,
		ev.EntryKind,
		ev.Entry,
		ev.Class,
		nullString(ev.BeforeName),
		nullString(ev.TargetName),
		nullString(ev.Access),
		nullString(ev.Docs),
		ev.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record change: %w", err)
	}
	return res.LastInsertId()
}

// List returns events matching opts, newest first.
func (s *Store) List(opts ListOptions) (*ListResponse, error) {
	var conditions []string
	var args []interface{}

	if opts.User != "" {
		conditions = append(conditions, "username = ?")
		args = append(args, opts.User)
	}
	if len(opts.Kinds) > 0 {
		placeholders := make([]string, len(opts.Kinds))
		for i, k := range opts.Kinds {
			placeholders[i] = "?"
			args = append(args, k)
		}
		conditions = append(conditions, fmt.Sprintf("kind IN (%s)", strings.Join(placeholders, ",")))
	}
	if opts.Class != "" {
		conditions = append(conditions, "class = ?")
		args = append(args, opts.Class)
	}
	if !opts.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.Since.UTC().Format(time.RFC3339Nano))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM changes %s", whereClause)
	if err := s.conn.QueryRow(countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count changes: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	query := fmt.Sprintf(`
		SELECT id, sync_id, session, username, kind, entry_kind, entry, class,
			before_name, target_name, access, docs, created_at
		FROM changes %s
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, limit, opts.Offset)

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changes: %w", err)
	}

	return &ListResponse{Events: events, TotalCount: totalCount}, nil
}

// Prune removes events older than retention and returns how many were
// deleted.
func (s *Store) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := s.conn.Exec(`DELETE FROM changes WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var ev Event
	var before, target, access, docs sql.NullString
	var createdAt string

	err := rows.Scan(
		&ev.ID,
		&ev.SyncID,
		&ev.Session,
		&ev.User,
		&ev.Kind,
		&ev.EntryKind,
		&ev.Entry,
		&ev.Class,
		&before,
		&target,
		&access,
		&docs,
		&createdAt,
	)
	if err != nil {
		return ev, fmt.Errorf("failed to scan change: %w", err)
	}

	ev.BeforeName = before.String
	ev.TargetName = target.String
	ev.Access = access.String
	ev.Docs = docs.String
	if ev.At, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return ev, fmt.Errorf("invalid timestamp %q: %w", createdAt, err)
	}
	return ev, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
