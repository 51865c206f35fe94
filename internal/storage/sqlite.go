package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// tsLayout is fixed-width so timestamps sort correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) (time.Time, error) { return time.Parse(tsLayout, s) }

// Store wraps a SQLite database with methods for preferences, chat
// histories, the activity snapshot and the job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "outing.db")
	}

	// Pragmas in the DSN are applied to every pooled connection.
	db, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests in other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Preferences ---

func (s *Store) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	var p Preferences
	var location sql.NullString
	var budgetMin, budgetMax sql.NullFloat64
	var interests, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, location, interests, budget_min, budget_max, updated_at
		FROM preferences WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &location, &interests, &budgetMin, &budgetMax, &updatedAt)
	if err == sql.ErrNoRows {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, err
	}

	if location.Valid {
		p.Location = &location.String
	}
	if budgetMin.Valid {
		p.BudgetMin = &budgetMin.Float64
	}
	if budgetMax.Valid {
		p.BudgetMax = &budgetMax.Float64
	}
	if err := json.Unmarshal([]byte(interests), &p.Interests); err != nil {
		return Preferences{}, fmt.Errorf("parsing interests: %w", err)
	}
	if p.Interests == nil {
		p.Interests = []string{}
	}
	if p.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return Preferences{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return p, nil
}

// SavePreferences inserts or replaces the record for p.UserID.
func (s *Store) SavePreferences(ctx context.Context, p Preferences) error {
	interests := p.Interests
	if interests == nil {
		interests = []string{}
	}
	data, err := json.Marshal(interests)
	if err != nil {
		return fmt.Errorf("encoding interests: %w", err)
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, location, interests, budget_min, budget_max, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			location = excluded.location,
			interests = excluded.interests,
			budget_min = excluded.budget_min,
			budget_max = excluded.budget_max,
			updated_at = excluded.updated_at`,
		p.UserID, nullString(p.Location), string(data), nullFloat(p.BudgetMin), nullFloat(p.BudgetMax), formatTS(updatedAt),
	)
	return err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func (s *Store) ListPreferenceUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM preferences ORDER BY user_id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Chat histories ---

func (s *Store) GetChatHistory(ctx context.Context, id string) (ChatHistory, error) {
	var h ChatHistory
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at FROM chat_histories WHERE id = ?`, id,
	).Scan(&h.ID, &h.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return ChatHistory{}, ErrNotFound
	}
	if err != nil {
		return ChatHistory{}, err
	}
	if h.CreatedAt, err = parseTS(createdAt); err != nil {
		return ChatHistory{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if h.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return ChatHistory{}, fmt.Errorf("parsing updated_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tool_calls, tool_call_id
		FROM chat_messages WHERE history_id = ? ORDER BY seq ASC`, id,
	)
	if err != nil {
		return ChatHistory{}, err
	}
	defer rows.Close()

	h.Messages = []Message{}
	for rows.Next() {
		var m Message
		var toolCalls sql.NullString
		if err := rows.Scan(&m.Role, &m.Content, &toolCalls, &m.ToolCallID); err != nil {
			return ChatHistory{}, err
		}
		if toolCalls.Valid && toolCalls.String != "" {
			m.ToolCalls = json.RawMessage(toolCalls.String)
		}
		h.Messages = append(h.Messages, m)
	}
	return h, rows.Err()
}

// SaveChatHistory inserts or replaces a history and its messages. On
// update the stored created_at is kept.
func (s *Store) SaveChatHistory(ctx context.Context, h ChatHistory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_histories (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		h.ID, h.Title, formatTS(h.CreatedAt), formatTS(h.UpdatedAt),
	); err != nil {
		return fmt.Errorf("upserting history: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE history_id = ?`, h.ID); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chat_messages (history_id, seq, role, content, tool_calls, tool_call_id)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing message insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range h.Messages {
		var toolCalls any
		if len(m.ToolCalls) > 0 {
			toolCalls = string(m.ToolCalls)
		}
		if _, err := stmt.ExecContext(ctx, h.ID, i, m.Role, m.Content, toolCalls, m.ToolCallID); err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ListChatHistories returns summaries, most recently updated first.
func (s *Store) ListChatHistories(ctx context.Context) ([]ChatHistorySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.title, h.created_at, h.updated_at, COUNT(m.seq)
		FROM chat_histories h LEFT JOIN chat_messages m ON m.history_id = h.id
		GROUP BY h.id
		ORDER BY h.updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ChatHistorySummary{}
	for rows.Next() {
		var sum ChatHistorySummary
		var createdAt, updatedAt string
		if err := rows.Scan(&sum.ID, &sum.Title, &createdAt, &updatedAt, &sum.MessageCount); err != nil {
			return nil, err
		}
		if sum.CreatedAt, err = parseTS(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if sum.UpdatedAt, err = parseTS(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) DeleteChatHistory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_histories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ClearChatHistories(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_histories`)
	return err
}

// --- Activity snapshot ---

// SaveActivitySnapshot replaces the cached scrape result.
func (s *Store) SaveActivitySnapshot(ctx context.Context, payload []byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_snapshot (id, payload, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		string(payload), formatTS(at),
	)
	return err
}

// LoadActivitySnapshot returns the cached scrape result, or ErrNotFound
// before the first scrape.
func (s *Store) LoadActivitySnapshot(ctx context.Context) ([]byte, time.Time, error) {
	var payload, updatedAt string
	err := s.db.QueryRowContext(ctx, `SELECT payload, updated_at FROM activity_snapshot WHERE id = 1`).Scan(&payload, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	t, err := parseTS(updatedAt)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return []byte(payload), t, nil
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

// PendingJobs counts pending jobs of the given type.
func (s *Store) PendingJobs(jobType string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE type = ? AND status = 'pending'`, jobType).Scan(&n)
	return n, err
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]interface{}, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}
