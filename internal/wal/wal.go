// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package wal implements the write-ahead log: the durable
// record of admitted envelopes, keyed by idempotency key, that the
// EventBus appends to after the dedupe check passes. A uniqueness
// violation on append is itself a dedupe signal (two admissions racing
// on the same key), distinct from a transient I/O failure.
package wal

import (
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	_ "modernc.org/sqlite"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/errors"
)

// Record is one entry read back from the log.
type Record struct {
	RowID          int64
	IdempotencyKey string
	TSNs           uint64
	Bytes          []byte
	Checksum       [32]byte
}

// WAL is the append-only, idempotency-keyed store backing the EventBus
// admission pipeline.
type WAL struct {
	db *sql.DB
}

// Open opens or creates the WAL database at path, following the
// journal-mode-WAL / busy-timeout convention used throughout amoskys's
// sqlite stores.
func Open(path string) (*WAL, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "open wal db")
	}
	w := &WAL{db: db}
	if err := w.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *WAL) Close() error { return w.db.Close() }

func (w *WAL) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS wal_entries (
		rowid INTEGER PRIMARY KEY AUTOINCREMENT,
		idempotency_key TEXT NOT NULL UNIQUE,
		ts_ns INTEGER NOT NULL,
		admitted_ts INTEGER NOT NULL,
		bytes BLOB NOT NULL,
		checksum BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_wal_entries_ts ON wal_entries(ts_ns);
	CREATE INDEX IF NOT EXISTS idx_wal_entries_admitted ON wal_entries(admitted_ts);
	`
	if _, err := w.db.Exec(schema); err != nil {
		return errors.Wrap(err, errors.KindInternal, "init wal schema")
	}
	return nil
}

// ErrDuplicate is returned by Append when idempotencyKey already exists.
// Callers must treat this as a dedupe hit, never as a transient failure.
var ErrDuplicate = errors.New(errors.KindPermanent, "wal: duplicate idempotency key")

// Append durably records an envelope. It computes a blake2b-256
// checksum over b so a later Scan can detect on-disk corruption. If
// idempotencyKey already has an entry, Append returns ErrDuplicate
// without modifying the existing row.
func (w *WAL) Append(idempotencyKey string, tsNs uint64, b []byte) error {
	sum := blake2b.Sum256(b)
	_, err := w.db.Exec(
		`INSERT INTO wal_entries (idempotency_key, ts_ns, admitted_ts, bytes, checksum) VALUES (?, ?, ?, ?, ?)`,
		idempotencyKey, int64(tsNs), clock.Now().UnixNano(), b, sum[:],
	)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, errors.KindTransient, "wal append")
}

// isUniqueViolation recognizes modernc.org/sqlite's UNIQUE constraint
// failure without importing its driver-specific error type, so the WAL
// package depends only on database/sql semantics.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsFold(msg, "UNIQUE constraint failed") || containsFold(msg, "constraint failed: UNIQUE")
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if equalFold(s[i:i+m], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Has reports whether idempotencyKey already has a WAL entry, for
// callers that want to distinguish a dedupe hit from Append's error
// path without attempting the write.
func (w *WAL) Has(idempotencyKey string) (bool, error) {
	var n int
	err := w.db.QueryRow(`SELECT COUNT(1) FROM wal_entries WHERE idempotency_key = ?`, idempotencyKey).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, errors.KindTransient, "wal has")
	}
	return n > 0, nil
}

// ScanSince returns records with rowid > afterRowID, oldest first,
// capped at limit. A limit <= 0 means unbounded.
func (w *WAL) ScanSince(afterRowID int64, limit int) ([]Record, error) {
	query := `SELECT rowid, idempotency_key, ts_ns, bytes, checksum FROM wal_entries WHERE rowid > ? ORDER BY rowid ASC`
	args := []any{afterRowID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := w.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransient, "wal scan")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var checksum []byte
		if err := rows.Scan(&r.RowID, &r.IdempotencyKey, &r.TSNs, &r.Bytes, &checksum); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "wal scan row")
		}
		copy(r.Checksum[:], checksum)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.KindTransient, "wal scan rows")
	}
	return out, nil
}

// Verify recomputes the blake2b-256 checksum of r.Bytes and reports
// whether it matches the stored checksum, detecting on-disk corruption
// that a plain sqlite read would not surface.
func Verify(r Record) bool {
	sum := blake2b.Sum256(r.Bytes)
	return sum == r.Checksum
}

// Prune deletes entries admitted before the retention cutoff
// (clock.Now() - retention), returning the number of rows removed.
// This is the WAL retention policy referenced: the log is not
// kept forever, only long enough to satisfy the agent's re-delivery
// window plus the correlation engine's longest lookback.
func (w *WAL) Prune(retention time.Duration) (int64, error) {
	cutoff := clock.Now().Add(-retention).UnixNano()
	res, err := w.db.Exec(`DELETE FROM wal_entries WHERE admitted_ts < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, errors.KindInternal, "wal prune")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.KindInternal, "wal prune rows affected")
	}
	return n, nil
}

// Count returns the number of entries currently retained.
func (w *WAL) Count() (int64, error) {
	var n int64
	if err := w.db.QueryRow(`SELECT COUNT(1) FROM wal_entries`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.KindTransient, "wal count")
	}
	return n, nil
}

// String implements fmt.Stringer for diagnostics.
func (r Record) String() string {
	return fmt.Sprintf("wal.Record{rowid=%d key=%q ts_ns=%d len=%d}", r.RowID, r.IdempotencyKey, r.TSNs, len(r.Bytes))
}
