// Package ledger persists which comments the bot has already answered.
package ledger

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrs "github.com/jamesprial/xkcdbot/pkg/errors"
	"github.com/jamesprial/xkcdbot/pkg/types"

	_ "modernc.org/sqlite"
)

// Store is the durable reply ledger. Answered ids are mirrored in memory so
// lookups during a crawl never touch the database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu    sync.RWMutex
	known map[string]struct{}
}

// Open creates or opens the SQLite ledger at path and loads the known ids.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &pkgerrs.LedgerError{Operation: "open", Err: err}
	}
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, &pkgerrs.LedgerError{Operation: "migrate", Err: err}
	}

	s := &Store{db: db, logger: logger, known: make(map[string]struct{})}
	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, &pkgerrs.LedgerError{Operation: "load", Err: err}
	}
	logger.Debug("ledger opened", "path", path, "known", len(s.known))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS replies (
			parent_comment_id TEXT PRIMARY KEY,
			reply_id TEXT NOT NULL DEFAULT '',
			subreddit TEXT NOT NULL DEFAULT '',
			resource_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_replies_created_at ON replies(created_at)`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("executing migration: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT parent_comment_id FROM replies`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		s.known[id] = struct{}{}
	}
	return rows.Err()
}

// IsKnown reports whether commentID was already answered.
func (s *Store) IsKnown(commentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[commentID]
	return ok
}

// Len returns the number of answered comments.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.known)
}

// Record durably stores a posted reply. The id only becomes known once the
// write succeeded. Recording an id twice keeps the first record.
func (s *Store) Record(ctx context.Context, record types.ReplyRecord) error {
	if record.ParentCommentID == "" {
		return &pkgerrs.LedgerError{Operation: "record", Err: fmt.Errorf("parent comment id is empty")}
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO replies (parent_comment_id, reply_id, subreddit, resource_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		record.ParentCommentID, record.ReplyID, record.Subreddit, record.ResourceID, createdAt.Unix())
	if err != nil {
		return &pkgerrs.LedgerError{Operation: "record", CommentID: record.ParentCommentID, Err: err}
	}

	s.mu.Lock()
	s.known[record.ParentCommentID] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Get returns the stored record for commentID.
func (s *Store) Get(ctx context.Context, commentID string) (*types.ReplyRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT parent_comment_id, reply_id, subreddit, resource_id, created_at FROM replies WHERE parent_comment_id = ?`, commentID)

	var record types.ReplyRecord
	var createdAt int64
	err := row.Scan(&record.ParentCommentID, &record.ReplyID, &record.Subreddit, &record.ResourceID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &pkgerrs.LedgerError{Operation: "get", CommentID: commentID, Err: err}
	}
	record.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &record, true, nil
}

// ReadLegacy reads a plain-text ledger with one comment id per line, as
// written by earlier versions of the bot. Blank lines are skipped.
func ReadLegacy(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &pkgerrs.LedgerError{Operation: "import", Err: err}
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &pkgerrs.LedgerError{Operation: "import", Err: err}
	}
	return ids, nil
}

// Import records ids without reply metadata and returns how many were not
// known before.
func (s *Store) Import(ctx context.Context, ids []string) (int, error) {
	imported := 0
	now := time.Now().UTC()
	for _, id := range ids {
		if s.IsKnown(id) {
			continue
		}
		if err := s.Record(ctx, types.ReplyRecord{ParentCommentID: id, CreatedAt: now}); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// ImportLegacy reads path with ReadLegacy and imports its ids.
func (s *Store) ImportLegacy(ctx context.Context, path string) (int, error) {
	ids, err := ReadLegacy(path)
	if err != nil {
		return 0, err
	}
	imported, err := s.Import(ctx, ids)
	if err != nil {
		return imported, err
	}
	s.logger.Info("imported legacy ledger", "path", path, "imported", imported)
	return imported, nil
}
