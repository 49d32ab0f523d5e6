// Copyright 2025 The Bake Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package blobindex implements the persistent catalog of locally stored
// blobs: a SQLite-backed primary implementation (on the pure-Go
// modernc.org/sqlite driver) and a Pebble-backed embedded-KV alternative.
package blobindex

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bake-build/bake/internal/errs"
)

// Entry mirrors one row of the catalog.
type Entry struct {
	Digest             string
	Algorithm          string
	Size               int64
	StoredAt           int64
	AccessCount         int64
	LastAccessed        int64
	CompressionFormat   int
}

const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	digest TEXT PRIMARY KEY,
	algorithm TEXT NOT NULL,
	size INTEGER NOT NULL,
	stored_at INTEGER NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 1,
	last_accessed INTEGER NOT NULL,
	compression_format INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_blobs_last_accessed ON blobs(last_accessed);
CREATE INDEX IF NOT EXISTS idx_blobs_size ON blobs(size);
CREATE INDEX IF NOT EXISTS idx_blobs_algorithm ON blobs(algorithm);
`

// SQLiteIndex is a mutex-guarded database/sql catalog; the connection
// is guarded by a mutex and WAL journaling is enabled. Grounded on
// _examples/mattcburns-shoal-provision/internal/database/database.go's
// modernc.org/sqlite + migration-in-a-transaction pattern.
type SQLiteIndex struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLiteIndex opens (creating if necessary) a SQLite catalog at path.
func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("blobindex: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("blobindex: applying schema: %w", err)
	}

	return &SQLiteIndex{db: db}, nil
}

func (i *SQLiteIndex) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.db.Close()
}

// Insert records a freshly stored blob as part of the put
// protocol. compression_format is 1 when compressed is true, 0 otherwise.
func (i *SQLiteIndex) Insert(digest, algorithm string, size int64, compressed bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now().Unix()
	compressionFormat := 0
	if compressed {
		compressionFormat = 1
	}
	_, err := i.db.Exec(
		`INSERT INTO blobs (digest, algorithm, size, stored_at, access_count, last_accessed, compression_format)
		 VALUES (?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(digest) DO UPDATE SET last_accessed = excluded.last_accessed, access_count = blobs.access_count + 1`,
		digest, algorithm, size, now, now, compressionFormat,
	)
	if err != nil {
		return errs.NewCacheBackendError("blobindex.sqlite", "insert", err)
	}
	return nil
}

// Touch updates last_accessed and increments access_count, reflecting
// a get against the indexed blob.
func (i *SQLiteIndex) Touch(digest string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	res, err := i.db.Exec(
		`UPDATE blobs SET last_accessed = ?, access_count = access_count + 1 WHERE digest = ?`,
		time.Now().Unix(), digest,
	)
	if err != nil {
		return errs.NewCacheBackendError("blobindex.sqlite", "touch", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Remove deletes digest's row. Missing rows are not an error.
func (i *SQLiteIndex) Remove(digest string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, err := i.db.Exec(`DELETE FROM blobs WHERE digest = ?`, digest); err != nil {
		return errs.NewCacheBackendError("blobindex.sqlite", "remove", err)
	}
	return nil
}

// Contains reports whether digest has a catalog row.
func (i *SQLiteIndex) Contains(digest string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var exists int
	err := i.db.QueryRow(`SELECT 1 FROM blobs WHERE digest = ? LIMIT 1`, digest).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.NewCacheBackendError("blobindex.sqlite", "contains", err)
	}
	return true, nil
}

// Size returns the recorded size of digest, or false if absent.
func (i *SQLiteIndex) Size(digest string) (int64, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var size int64
	err := i.db.QueryRow(`SELECT size FROM blobs WHERE digest = ?`, digest).Scan(&size)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errs.NewCacheBackendError("blobindex.sqlite", "size", err)
	}
	return size, true, nil
}

// TotalSize returns the sum of every catalogued blob's size.
func (i *SQLiteIndex) TotalSize() (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var total sql.NullInt64
	if err := i.db.QueryRow(`SELECT SUM(size) FROM blobs`).Scan(&total); err != nil {
		return 0, errs.NewCacheBackendError("blobindex.sqlite", "total_size", err)
	}
	return total.Int64, nil
}

// ListAll returns every catalog row, unordered.
func (i *SQLiteIndex) ListAll() ([]Entry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rows, err := i.db.Query(`SELECT digest, algorithm, size, stored_at, access_count, last_accessed, compression_format FROM blobs`)
	if err != nil {
		return nil, errs.NewCacheBackendError("blobindex.sqlite", "list_all", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Digest, &e.Algorithm, &e.Size, &e.StoredAt, &e.AccessCount, &e.LastAccessed, &e.CompressionFormat); err != nil {
			return nil, errs.NewCacheBackendError("blobindex.sqlite", "list_all", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// lruBatch returns up to n rows ordered by last_accessed ascending (the
// least-recently-used first), for evict_to_size/evict_lru's batched pop.
func (i *SQLiteIndex) lruBatch(n int) ([]Entry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rows, err := i.db.Query(
		`SELECT digest, algorithm, size, stored_at, access_count, last_accessed, compression_format
		 FROM blobs ORDER BY last_accessed ASC LIMIT ?`, n,
	)
	if err != nil {
		return nil, errs.NewCacheBackendError("blobindex.sqlite", "lru_batch", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Digest, &e.Algorithm, &e.Size, &e.StoredAt, &e.AccessCount, &e.LastAccessed, &e.CompressionFormat); err != nil {
			return nil, errs.NewCacheBackendError("blobindex.sqlite", "lru_batch", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// largestBatch returns up to n rows ordered by size descending, for
// evict_largest's single-pass variant.
func (i *SQLiteIndex) largestBatch(n int) ([]Entry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rows, err := i.db.Query(
		`SELECT digest, algorithm, size, stored_at, access_count, last_accessed, compression_format
		 FROM blobs ORDER BY size DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, errs.NewCacheBackendError("blobindex.sqlite", "largest_batch", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Digest, &e.Algorithm, &e.Size, &e.StoredAt, &e.AccessCount, &e.LastAccessed, &e.CompressionFormat); err != nil {
			return nil, errs.NewCacheBackendError("blobindex.sqlite", "largest_batch", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
