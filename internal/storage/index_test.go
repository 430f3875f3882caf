/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestOpenIndexCreatesWALAndSchema(t *testing.T) {
	dir := t.TempDir()
	ix, err := OpenIndex(dir)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer ix.Close()
	if _, err := os.Stat(IndexPath(dir)); err != nil {
		t.Fatalf("index file missing: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var mode string
	if err := ix.db.QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if mode != "wal" && mode != "WAL" {
		t.Fatalf("expected WAL mode, got %s", mode)
	}
	var cnt int
	if err := ix.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('meta','version','thumbs')").Scan(&cnt); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if cnt != 3 {
		t.Fatalf("expected 3 tables, got %d", cnt)
	}
	var schema int
	if err := ix.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&schema); err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if schema != schemaVersion {
		t.Fatalf("schema = %d, want %d", schema, schemaVersion)
	}
}

func TestOpenIndexRequiresDir(t *testing.T) {
	if _, err := OpenIndex("  "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

// An index written before w/h existed is upgraded in place.
func TestMigrations_UpgradeV1ToV2(t *testing.T) {
	dir := t.TempDir()
	idx := IndexPath(dir)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)", filepath.ToSlash(idx))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
		`CREATE TABLE version (id INTEGER PRIMARY KEY CHECK(id=1), schema INTEGER NOT NULL, app TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL);`,
		`INSERT INTO version(id, schema, app, created_at, updated_at) VALUES(1, 1, 'test', '2020-01-01T00:00:00Z', '2020-01-01T00:00:00Z');`,
		`CREATE TABLE thumbs (id INTEGER PRIMARY KEY, doc TEXT NOT NULL, page INTEGER NOT NULL, scale_milli INTEGER NOT NULL, purpose TEXT NOT NULL, blob BLOB NOT NULL, size INTEGER NOT NULL DEFAULT 0, updated_at TEXT NOT NULL, last_access INTEGER NOT NULL DEFAULT 0);`,
		`INSERT INTO thumbs(doc,page,scale_milli,purpose,blob,size,updated_at) VALUES('d',1,250,'thumbnail',x'00',1,'2020-01-01T00:00:00Z');`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed v1 schema: %v (q=%s)", err, q)
		}
	}
	db.Close()

	ix, err := OpenIndex(dir)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer ix.Close()
	var schema int
	if err := ix.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&schema); err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if schema != 2 {
		t.Fatalf("expected schema 2 after migration, got %d", schema)
	}
	var w, h int
	if err := ix.db.QueryRowContext(ctx, `SELECT w, h FROM thumbs WHERE doc='d'`).Scan(&w, &h); err != nil {
		t.Fatalf("new columns missing: %v", err)
	}
	var cnt int
	if err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_thumbs_access'`).Scan(&cnt); err != nil || cnt != 1 {
		t.Fatalf("access index missing: cnt=%d err=%v", cnt, err)
	}
}

func TestOpenOrRebuild_OnCorruption(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(IndexPath(dir), []byte("THIS IS NOT SQLITE"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ix, rebuilt, err := OpenOrRebuild(ctx, dir)
	if err != nil {
		t.Fatalf("OpenOrRebuild: %v", err)
	}
	defer ix.Close()
	if !rebuilt {
		t.Fatalf("expected rebuild to occur")
	}
	if _, err := ix.db.ExecContext(ctx, `SELECT 1 FROM thumbs LIMIT 1`); err != nil {
		t.Fatalf("rebuilt index unusable: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "backups"))
	if len(entries) == 0 {
		t.Fatalf("expected a backup of the corrupt file")
	}

	ix2dir := t.TempDir()
	ix2, rebuilt, err := OpenOrRebuild(ctx, ix2dir)
	if err != nil || rebuilt {
		t.Fatalf("healthy open: rebuilt=%v err=%v", rebuilt, err)
	}
	ix2.Close()
}
