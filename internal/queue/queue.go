// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package queue implements the agent-side local durable queue:
// a FIFO of serialized envelopes bounded by byte size and
// per-entry retry count, fsync-backed so entries survive an agent
// crash, with oldest-entry-drop backpressure when the byte cap is
// exceeded.
package queue

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/amoskys/amoskys/internal/errors"
)

// Entry is one queued envelope.
type Entry struct {
	RowID   int64
	Bytes   []byte
	Retries int
}

// Queue is a single-writer, crash-durable FIFO.
type Queue struct {
	db         *sql.DB
	maxBytes   int64
	maxRetries int
}

// Open opens or creates the queue database at path. synchronous=FULL
// forces an fsync on every commit so writes survive an agent crash.
func Open(path string, maxBytes int64, maxRetries int) (*Queue, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "open queue db")
	}
	q := &Queue{db: db, maxBytes: maxBytes, maxRetries: maxRetries}
	if err := q.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) Close() error { return q.db.Close() }

func (q *Queue) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS queue_entries (
		rowid INTEGER PRIMARY KEY AUTOINCREMENT,
		bytes BLOB NOT NULL,
		retries INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := q.db.Exec(schema)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "init queue schema")
	}
	return nil
}

// totalBytes returns the sum of all entry payload sizes currently held.
func (q *Queue) totalBytes() (int64, error) {
	var n sql.NullInt64
	if err := q.db.QueryRow(`SELECT SUM(LENGTH(bytes)) FROM queue_entries`).Scan(&n); err != nil {
		return 0, err
	}
	return n.Int64, nil
}

// Push appends b to the tail of the queue. If the queue's total byte
// size would exceed maxBytes, the oldest entry is dropped first
// (its backpressure behavior); Push reports whether a drop occurred
// so the caller can record the dropped-event metric.
func (q *Queue) Push(b []byte) (dropped bool, err error) {
	if q.maxBytes > 0 {
		total, err := q.totalBytes()
		if err != nil {
			return false, errors.Wrap(err, errors.KindTransient, "queue size check")
		}
		if total+int64(len(b)) > q.maxBytes {
			if _, dropErr := q.dropOldest(); dropErr != nil {
				return false, dropErr
			}
			dropped = true
		}
	}
	if _, err := q.db.Exec(`INSERT INTO queue_entries (bytes, retries) VALUES (?, 0)`, b); err != nil {
		return dropped, errors.Wrap(err, errors.KindTransient, "queue push")
	}
	return dropped, nil
}

func (q *Queue) dropOldest() (bool, error) {
	res, err := q.db.Exec(`DELETE FROM queue_entries WHERE rowid = (SELECT MIN(rowid) FROM queue_entries)`)
	if err != nil {
		return false, errors.Wrap(err, errors.KindTransient, "drop oldest queue entry")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, errors.KindInternal, "drop oldest rows affected")
	}
	return n > 0, nil
}

// Peek returns the oldest entry without removing it, or nil if the
// queue is empty.
func (q *Queue) Peek() (*Entry, error) {
	row := q.db.QueryRow(`SELECT rowid, bytes, retries FROM queue_entries ORDER BY rowid ASC LIMIT 1`)
	var e Entry
	if err := row.Scan(&e.RowID, &e.Bytes, &e.Retries); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.KindTransient, "queue peek")
	}
	return &e, nil
}

// Commit permanently removes rowid after a successful send.
func (q *Queue) Commit(rowID int64) error {
	if _, err := q.db.Exec(`DELETE FROM queue_entries WHERE rowid = ?`, rowID); err != nil {
		return errors.Wrap(err, errors.KindTransient, "queue commit")
	}
	return nil
}

// Requeue increments rowid's retry count after a RETRY or transport
// failure. If the new retry count exceeds maxRetries, the entry is
// dropped instead, permanently discarded with a warning, and
// Requeue reports droppedOverRetry = true.
func (q *Queue) Requeue(rowID int64) (droppedOverRetry bool, err error) {
	var retries int
	if err := q.db.QueryRow(`SELECT retries FROM queue_entries WHERE rowid = ?`, rowID).Scan(&retries); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, errors.Wrap(err, errors.KindTransient, "queue requeue lookup")
	}
	retries++
	if q.maxRetries > 0 && retries > q.maxRetries {
		if err := q.Commit(rowID); err != nil {
			return false, err
		}
		return true, nil
	}
	if _, err := q.db.Exec(`UPDATE queue_entries SET retries = ? WHERE rowid = ?`, retries, rowID); err != nil {
		return false, errors.Wrap(err, errors.KindTransient, "queue requeue update")
	}
	return false, nil
}

// Size returns the number of entries currently queued.
func (q *Queue) Size() (int64, error) {
	var n int64
	if err := q.db.QueryRow(`SELECT COUNT(1) FROM queue_entries`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.KindTransient, "queue size")
	}
	return n, nil
}
