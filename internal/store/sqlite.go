package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db        *sql.DB
	maxPerBin int
}

// NewSQLiteStore opens (or creates) the database at path. maxPerBin is the
// retention limit enforced on every append.
func NewSQLiteStore(path string, maxConns int, maxPerBin int) (*SQLiteStore, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxConns)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db, maxPerBin: maxPerBin}
	if err := s.init(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS bins (
		id TEXT PRIMARY KEY,
		last_activity DATETIME NOT NULL,
		next_seq INTEGER NOT NULL DEFAULT 1
	);
	CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bin_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		method TEXT NOT NULL,
		headers TEXT NOT NULL,
		body BLOB,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(bin_id) REFERENCES bins(id) ON DELETE CASCADE,
		UNIQUE(bin_id, seq)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) CreateBin(ctx context.Context) (*Bin, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, "INSERT INTO bins (id, last_activity) VALUES (?, ?)", id, now)
	if err != nil {
		return nil, err
	}
	return &Bin{ID: id, LastActivity: now}, nil
}

func (s *SQLiteStore) GetBin(ctx context.Context, id string) (*Bin, error) {
	var b Bin
	err := s.db.QueryRowContext(ctx, "SELECT id, last_activity FROM bins WHERE id = ?", id).
		Scan(&b.ID, &b.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBinNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, binID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM bins WHERE id = ?", binID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Append inserts req, evicts the oldest rows past the retention limit, and
// bumps last_activity, all in one transaction. Sequences come from the bin's
// persisted counter so eviction never causes reuse.
func (s *SQLiteStore) Append(ctx context.Context, req *CapturedRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var nextSeq int64
	err = tx.QueryRowContext(ctx, "SELECT next_seq FROM bins WHERE id = ?", req.BinID).Scan(&nextSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBinNotFound
	}
	if err != nil {
		return err
	}

	headers, err := EncodeHeaders(req.Headers)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO requests (bin_id, seq, method, headers, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, req.BinID, nextSeq, req.Method, headers, req.Body, now)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "UPDATE bins SET next_seq = ?, last_activity = ? WHERE id = ?",
		nextSeq+1, now, req.BinID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM requests
		WHERE bin_id = ? AND seq NOT IN (
			SELECT seq FROM requests WHERE bin_id = ? ORDER BY seq DESC LIMIT ?
		)
	`, req.BinID, req.BinID, s.maxPerBin)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	req.Seq = nextSeq
	req.Timestamp = now
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, binID string) ([]*CapturedRequest, error) {
	ok, err := s.Exists(ctx, binID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBinNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, method, headers, body, created_at
		FROM requests
		WHERE bin_id = ?
		ORDER BY seq ASC
	`, binID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*CapturedRequest
	for rows.Next() {
		r, err := scanRequest(rows, binID)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

func (s *SQLiteStore) GetRequest(ctx context.Context, binID string, seq int64) (*CapturedRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, method, headers, body, created_at
		FROM requests
		WHERE bin_id = ? AND seq = ?
	`, binID, seq)

	r, err := scanRequest(row, binID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner, binID string) (*CapturedRequest, error) {
	var (
		r       CapturedRequest
		headers string
	)
	if err := row.Scan(&r.Seq, &r.Method, &headers, &r.Body, &r.Timestamp); err != nil {
		return nil, err
	}
	decoded, err := DecodeHeaders(headers)
	if err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	r.BinID = binID
	r.Headers = decoded
	return &r, nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, olderThan time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT id FROM bins WHERE last_activity < ?", olderThan.UTC())
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM bins WHERE last_activity < ?", olderThan.UTC()); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
