package kv

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a durable Store backed by a single SQLite file. Two tables model
// the port: plain keys (with optional expiry) and sorted-set rows. A Batch is
// one SQL transaction, giving the all-or-nothing guarantee.
type SQLite struct {
	db *sql.DB

	now func() time.Time
}

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			expires_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS zsets (
			key    TEXT NOT NULL,
			member TEXT NOT NULL,
			score  INTEGER NOT NULL,
			PRIMARY KEY (key, member)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_zsets_key_score ON zsets(key, score)`,
	}
}

// OpenSQLite opens (or creates) the store at dir/bazaar.db.
func OpenSQLite(dir string) (*SQLite, error) {
	path := filepath.Join(dir, "bazaar.db")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent handlers.
	db.SetMaxOpenConns(1)

	for _, stmt := range Migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// SetClock overrides the store clock. Test use only.
func (s *SQLite) SetClock(now func() time.Time) { s.now = now }

func (s *SQLite) nowMillis() int64 { return s.now().UnixMilli() }

func expiryMillis(now func() time.Time, ttl time.Duration) any {
	if ttl <= 0 {
		return nil
	}
	return now().Add(ttl).UnixMilli()
}

// Get returns the value at key, treating expired rows as absent.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT value, expires_at FROM kv WHERE key = ?
	`, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if expiresAt.Valid && expiresAt.Int64 <= s.nowMillis() {
		return "", false, nil
	}
	return value, true, nil
}

// Set writes key unconditionally.
func (s *SQLite) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			expires_at = excluded.expires_at
	`, key, value, expiryMillis(s.now, ttl))
	return err
}

// SetNX writes key only if absent (or expired). Returns true on write.
func (s *SQLite) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			expires_at = excluded.expires_at
		WHERE kv.expires_at IS NOT NULL AND kv.expires_at <= ?
	`, key, value, expiryMillis(s.now, ttl), s.nowMillis())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Del removes a key.
func (s *SQLite) Del(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Incr atomically increments an integer counter, creating it at 1.
func (s *SQLite) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.nowMillis()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?, '1', ?)
		ON CONFLICT(key) DO UPDATE SET
			value = CASE
				WHEN kv.expires_at IS NOT NULL AND kv.expires_at <= ? THEN '1'
				ELSE CAST(CAST(kv.value AS INTEGER) + 1 AS TEXT)
			END,
			expires_at = CASE
				WHEN kv.expires_at IS NOT NULL AND kv.expires_at <= ? THEN excluded.expires_at
				ELSE kv.expires_at
			END
	`, key, expiryMillis(s.now, ttl), now, now)
	if err != nil {
		return 0, err
	}
	var value string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value); err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

// ZAdd adds or updates a sorted-set member.
func (s *SQLite) ZAdd(ctx context.Context, key string, m Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO zsets (key, member, score) VALUES (?, ?, ?)
		ON CONFLICT(key, member) DO UPDATE SET score = excluded.score
	`, key, m.Member, m.Score)
	return err
}

// ZRem removes a sorted-set member.
func (s *SQLite) ZRem(ctx context.Context, key, member string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM zsets WHERE key = ? AND member = ?
	`, key, member)
	return err
}

// ZRange returns members ordered by score within rank positions [start, stop].
func (s *SQLite) ZRange(ctx context.Context, key string, start, stop int64, rev bool) ([]string, error) {
	order := "ASC"
	if rev {
		order = "DESC"
	}
	var limit int64 = -1 // SQLite: negative LIMIT means unbounded
	if stop >= 0 {
		limit = stop - start + 1
		if limit < 0 {
			return nil, nil
		}
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT member FROM zsets WHERE key = ?
		ORDER BY score %s, member %s LIMIT ? OFFSET ?
	`, order, order), key, limit, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ZCard returns the set cardinality.
func (s *SQLite) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM zsets WHERE key = ?
	`, key).Scan(&n)
	return n, err
}

// ZCount returns the number of members with score >= min.
func (s *SQLite) ZCount(ctx context.Context, key string, min int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM zsets WHERE key = ? AND score >= ?
	`, key, min).Scan(&n)
	return n, err
}

// Pipeline starts a write batch backed by one SQL transaction.
func (s *SQLite) Pipeline() Batch {
	return &sqliteBatch{store: s}
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// ─── Batch ──────────────────────────────────────────────────────────────────

type sqliteBatch struct {
	store *SQLite
	ops   []batchOp
}

func (b *sqliteBatch) Set(key, value string, ttl time.Duration) {
	b.ops = append(b.ops, batchOp{kind: "set", key: key, value: value, ttl: ttl})
}

func (b *sqliteBatch) Del(key string) {
	b.ops = append(b.ops, batchOp{kind: "del", key: key})
}

func (b *sqliteBatch) Incr(key string) {
	b.ops = append(b.ops, batchOp{kind: "incr", key: key})
}

func (b *sqliteBatch) ZAdd(key string, m Member) {
	b.ops = append(b.ops, batchOp{kind: "zadd", key: key, member: m})
}

func (b *sqliteBatch) ZRem(key, member string) {
	b.ops = append(b.ops, batchOp{kind: "zrem", key: key, member: Member{Member: member}})
}

func (b *sqliteBatch) Exec(ctx context.Context) error {
	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, op := range b.ops {
		switch op.kind {
		case "set":
			_, err = tx.ExecContext(ctx, `
				INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET
					value      = excluded.value,
					expires_at = excluded.expires_at
			`, op.key, op.value, expiryMillis(b.store.now, op.ttl))
		case "del":
			_, err = tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, op.key)
		case "incr":
			_, err = tx.ExecContext(ctx, `
				INSERT INTO kv (key, value, expires_at) VALUES (?, '1', NULL)
				ON CONFLICT(key) DO UPDATE SET
					value = CAST(CAST(kv.value AS INTEGER) + 1 AS TEXT)
			`, op.key)
		case "zadd":
			_, err = tx.ExecContext(ctx, `
				INSERT INTO zsets (key, member, score) VALUES (?, ?, ?)
				ON CONFLICT(key, member) DO UPDATE SET score = excluded.score
			`, op.key, op.member.Member, op.member.Score)
		case "zrem":
			_, err = tx.ExecContext(ctx, `
				DELETE FROM zsets WHERE key = ? AND member = ?
			`, op.key, op.member.Member)
		}
		if err != nil {
			return err
		}
	}
	b.ops = nil
	return tx.Commit()
}
