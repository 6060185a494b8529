/*
Package sqlite provides a SQLite-backed implementation of the ledger gateways.

PURPOSE:
  Implements ledger.Gateway (punches, withdrawals, settings and change
  subscriptions) on SQLite. The engine never sees SQL; services read a
  snapshot through the gateway and hand it to the pure engine.

KEY TABLES:
  punches:      One row per punch event
  withdrawals:  Signed minute adjustments
  settings:     One row per user

INDEXES:
  - idx_punches_user_time: Snapshot and range queries (hot path)
  - idx_withdrawals_user_date: Withdrawal listing

TIMESTAMPS:
  Punches keep their original offset in punched_at (RFC 3339) so the
  workday calendar is unchanged after a round-trip. punched_unix is the
  sort and range key.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Change notifications are published
  after the lock is released, so subscribers may read the store.

USAGE:
  store, err := sqlite.New("./data/ponto.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/edufeq03/app-ponto-sub000/ledger"
)

// Store implements ledger.Gateway using SQLite.
type Store struct {
	ledger.Broadcaster

	// Now stamps default settings on first access. Defaults to time.Now.
	Now func() time.Time

	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.Gateway = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, Now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS punches (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		punched_at TEXT NOT NULL,
		punched_unix INTEGER NOT NULL,
		origin TEXT NOT NULL,
		justification TEXT,
		is_edited BOOLEAN NOT NULL DEFAULT FALSE,
		original_json TEXT,
		image_ref TEXT,
		extracted_name TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_punches_user_time
		ON punches(user_id, punched_unix);

	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		minutes INTEGER NOT NULL,
		justification TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_user_date
		ON withdrawals(user_id, date);

	CREATE TABLE IF NOT EXISTS settings (
		user_id TEXT PRIMARY KEY,
		daily_standard_minutes INTEGER NOT NULL,
		night_cutoff_hour INTEGER NOT NULL,
		settlement_date TEXT NOT NULL,
		settlement_policy TEXT NOT NULL,
		summary_strategy TEXT NOT NULL DEFAULT '',
		incomplete_day_policy TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// PUNCHES (ledger.EventStore)
// =============================================================================

const punchColumns = `id, user_id, punched_at, origin, justification, is_edited,
	original_json, image_ref, extracted_name, created_at`

// Append persists a new punch.
func (s *Store) Append(ctx context.Context, e ledger.PunchEvent) error {
	s.mu.Lock()
	err := s.insertPunch(ctx, s.db, e)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.Publish(ledger.Change{UserID: e.UserID, Kind: ledger.ChangePunches})
	return nil
}

func (s *Store) insertPunch(ctx context.Context, db execer, e ledger.PunchEvent) error {
	original, err := marshalOriginal(e.OriginalPayload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO punches
		(id, user_id, punched_at, punched_unix, origin, justification, is_edited,
		 original_json, image_ref, extracted_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.ExecContext(ctx, query,
		e.ID,
		e.UserID,
		e.Timestamp.Format(time.RFC3339),
		e.Timestamp.Unix(),
		e.Origin,
		nullString(e.Justification),
		e.IsEdited,
		original,
		nullString(e.ImageRef),
		nullString(e.ExtractedName),
		formatCreated(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.InvalidEventError{EventID: e.ID, Reason: "id already exists"}
		}
		return fmt.Errorf("failed to append punch: %w", err)
	}
	return nil
}

// Query returns a user's punches ordered by timestamp.
func (s *Store) Query(ctx context.Context, userID ledger.UserID, r *ledger.DateRange) ([]ledger.PunchEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + punchColumns + ` FROM punches WHERE user_id = ?`
	args := []any{userID}
	if r != nil && !r.From.IsZero() {
		query += ` AND punched_unix >= ?`
		args = append(args, r.From.Unix())
	}
	if r != nil && !r.To.IsZero() {
		query += ` AND punched_unix <= ?`
		args = append(args, r.To.Unix())
	}
	query += ` ORDER BY punched_unix ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query punches: %w", err)
	}
	defer rows.Close()

	events := []ledger.PunchEvent{}
	for rows.Next() {
		e, err := scanPunch(rows)
		if err != nil {
			return nil, err
		}
		// Unix seconds drop sub-second precision at the range edges.
		if r.Includes(e.Timestamp) {
			events = append(events, e)
		}
	}
	return events, rows.Err()
}

// Event returns one punch or ledger.ErrEventNotFound.
func (s *Store) Event(ctx context.Context, id ledger.EventID) (ledger.PunchEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+punchColumns+` FROM punches WHERE id = ?`, id)
	e, err := scanPunch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.PunchEvent{}, ledger.ErrEventNotFound
	}
	return e, err
}

// Update replaces a stored punch.
func (s *Store) Update(ctx context.Context, e ledger.PunchEvent) error {
	original, err := marshalOriginal(e.OriginalPayload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE punches
		SET punched_at = ?, punched_unix = ?, origin = ?, justification = ?, is_edited = ?,
		    original_json = ?, image_ref = ?, extracted_name = ?
		WHERE id = ?`,
		e.Timestamp.Format(time.RFC3339),
		e.Timestamp.Unix(),
		e.Origin,
		nullString(e.Justification),
		e.IsEdited,
		original,
		nullString(e.ImageRef),
		nullString(e.ExtractedName),
		e.ID,
	)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to update punch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrEventNotFound
	}

	s.Publish(ledger.Change{UserID: e.UserID, Kind: ledger.ChangePunches})
	return nil
}

// Delete removes a punch.
func (s *Store) Delete(ctx context.Context, id ledger.EventID) error {
	return s.BatchDelete(ctx, []ledger.EventID{id})
}

// BatchDelete removes all ids in one transaction, or none of them.
func (s *Store) BatchDelete(ctx context.Context, ids []ledger.EventID) error {
	s.mu.Lock()
	touched, err := s.deletePunches(ctx, ids)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for userID := range touched {
		s.Publish(ledger.Change{UserID: userID, Kind: ledger.ChangePunches})
	}
	return nil
}

func (s *Store) deletePunches(ctx context.Context, ids []ledger.EventID) (map[ledger.UserID]bool, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	touched := make(map[ledger.UserID]bool)
	for _, id := range ids {
		var userID ledger.UserID
		err := sqlTx.QueryRowContext(ctx, `SELECT user_id FROM punches WHERE id = ?`, id).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrEventNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load punch: %w", err)
		}
		if _, err := sqlTx.ExecContext(ctx, `DELETE FROM punches WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete punch: %w", err)
		}
		touched[userID] = true
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}
	return touched, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPunch(row scanner) (ledger.PunchEvent, error) {
	var (
		e             ledger.PunchEvent
		punchedAt     string
		justification sql.NullString
		originalJSON  sql.NullString
		imageRef      sql.NullString
		extractedName sql.NullString
		createdAt     string
	)

	err := row.Scan(
		&e.ID, &e.UserID, &punchedAt, &e.Origin, &justification, &e.IsEdited,
		&originalJSON, &imageRef, &extractedName, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan punch: %w", err)
	}

	e.Timestamp, err = time.Parse(time.RFC3339, punchedAt)
	if err != nil {
		return e, fmt.Errorf("failed to parse punch time %q: %w", punchedAt, err)
	}
	e.Justification = justification.String
	e.ImageRef = imageRef.String
	e.ExtractedName = extractedName.String
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if originalJSON.Valid && originalJSON.String != "" {
		var p ledger.OriginalPayload
		if err := json.Unmarshal([]byte(originalJSON.String), &p); err != nil {
			return e, fmt.Errorf("failed to decode original payload: %w", err)
		}
		e.OriginalPayload = &p
	}
	return e, nil
}

func marshalOriginal(p *ledger.OriginalPayload) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode original payload: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// =============================================================================
// WITHDRAWALS (ledger.WithdrawalStore)
// =============================================================================

func (s *Store) AppendWithdrawal(ctx context.Context, w ledger.WithdrawalEvent) error {
	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO withdrawals (id, user_id, date, minutes, justification, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.UserID, w.Date.Format(time.RFC3339), w.Minutes,
		nullString(w.Justification), formatCreated(w.CreatedAt),
	)
	s.mu.Unlock()
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.InvalidWithdrawalError{Minutes: w.Minutes, Date: w.Date, Reason: "id already exists"}
		}
		return fmt.Errorf("failed to append withdrawal: %w", err)
	}

	s.Publish(ledger.Change{UserID: w.UserID, Kind: ledger.ChangeWithdrawals})
	return nil
}

// Withdrawals returns a user's withdrawals ordered by date.
func (s *Store) Withdrawals(ctx context.Context, userID ledger.UserID) ([]ledger.WithdrawalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, date, minutes, justification, created_at
		FROM withdrawals
		WHERE user_id = ?
		ORDER BY date ASC, created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawals: %w", err)
	}
	defer rows.Close()

	withdrawals := []ledger.WithdrawalEvent{}
	for rows.Next() {
		var (
			w             ledger.WithdrawalEvent
			date          string
			justification sql.NullString
			createdAt     string
		)
		if err := rows.Scan(&w.ID, &w.UserID, &date, &w.Minutes, &justification, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		if w.Date, err = time.Parse(time.RFC3339, date); err != nil {
			return nil, fmt.Errorf("failed to parse withdrawal date %q: %w", date, err)
		}
		w.Justification = justification.String
		w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

func (s *Store) DeleteWithdrawal(ctx context.Context, id ledger.WithdrawalID) error {
	s.mu.Lock()
	var userID ledger.UserID
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM withdrawals WHERE id = ?`, id).Scan(&userID)
	if err == nil {
		_, err = s.db.ExecContext(ctx, `DELETE FROM withdrawals WHERE id = ?`, id)
	}
	s.mu.Unlock()

	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete withdrawal: %w", err)
	}

	s.Publish(ledger.Change{UserID: userID, Kind: ledger.ChangeWithdrawals})
	return nil
}

// =============================================================================
// SETTINGS (ledger.SettingsProvider)
// =============================================================================

// Get returns the user's settings, storing defaults on first access.
func (s *Store) Get(ctx context.Context, userID ledger.UserID) (ledger.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.UserSettings{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	settings, err := s.loadOrCreateSettings(ctx, sqlTx, userID)
	if err != nil {
		return ledger.UserSettings{}, err
	}
	return settings, sqlTx.Commit()
}

// Set merges patch into the stored settings.
func (s *Store) Set(ctx context.Context, userID ledger.UserID, patch ledger.SettingsPatch) (ledger.UserSettings, error) {
	s.mu.Lock()
	merged, err := s.setSettings(ctx, userID, patch)
	s.mu.Unlock()
	if err != nil {
		return ledger.UserSettings{}, err
	}

	s.Publish(ledger.Change{UserID: userID, Kind: ledger.ChangeSettings})
	return merged, nil
}

func (s *Store) setSettings(ctx context.Context, userID ledger.UserID, patch ledger.SettingsPatch) (ledger.UserSettings, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.UserSettings{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	current, err := s.loadOrCreateSettings(ctx, sqlTx, userID)
	if err != nil {
		return ledger.UserSettings{}, err
	}
	merged, err := current.Merge(patch)
	if err != nil {
		return ledger.UserSettings{}, err
	}
	if err := saveSettings(ctx, sqlTx, userID, merged); err != nil {
		return ledger.UserSettings{}, err
	}
	return merged, sqlTx.Commit()
}

// Users lists every user with stored settings.
func (s *Store) Users(ctx context.Context) ([]ledger.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM settings ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []ledger.UserID
	for rows.Next() {
		var userID ledger.UserID
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

func (s *Store) loadOrCreateSettings(ctx context.Context, db interface {
	execer
	queryRower
}, userID ledger.UserID) (ledger.UserSettings, error) {
	var (
		settings       ledger.UserSettings
		settlementDate string
	)
	err := db.QueryRowContext(ctx, `
		SELECT daily_standard_minutes, night_cutoff_hour, settlement_date,
		       settlement_policy, summary_strategy, incomplete_day_policy
		FROM settings WHERE user_id = ?`, userID).Scan(
		&settings.DailyStandardMinutes, &settings.NightCutoffHour, &settlementDate,
		&settings.SettlementPolicy, &settings.SummaryStrategy, &settings.IncompleteDayPolicy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		settings = ledger.DefaultSettings(now())
		return settings, saveSettings(ctx, db, userID, settings)
	}
	if err != nil {
		return ledger.UserSettings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	settings.SettlementDate, err = time.Parse(time.RFC3339, settlementDate)
	if err != nil {
		return ledger.UserSettings{}, fmt.Errorf("failed to parse settlement date %q: %w", settlementDate, err)
	}
	return settings.WithDefaults(), nil
}

func saveSettings(ctx context.Context, db execer, userID ledger.UserID, settings ledger.UserSettings) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings
		(user_id, daily_standard_minutes, night_cutoff_hour, settlement_date,
		 settlement_policy, summary_strategy, incomplete_day_policy, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			daily_standard_minutes = excluded.daily_standard_minutes,
			night_cutoff_hour = excluded.night_cutoff_hour,
			settlement_date = excluded.settlement_date,
			settlement_policy = excluded.settlement_policy,
			summary_strategy = excluded.summary_strategy,
			incomplete_day_policy = excluded.incomplete_day_policy,
			updated_at = excluded.updated_at`,
		userID,
		settings.DailyStandardMinutes,
		settings.NightCutoffHour,
		settings.SettlementDate.Format(time.RFC3339),
		settings.SettlementPolicy,
		settings.SummaryStrategy,
		settings.IncompleteDayPolicy,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Reset clears punches, withdrawals and settings for every user.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"punches", "withdrawals", "settings"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatCreated(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
