/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package crash

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"signly/internal/domain"
)

func quietStderr(t *testing.T) {
	t.Helper()
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	t.Cleanup(func() {
		_ = w.Close()
		os.Stderr = old
		_, _ = io.Copy(io.Discard, r)
	})
}

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, err := writeReport(Options{}, nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	defer os.Remove(path)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "Signly Crash Report") || !strings.Contains(s, "Panic: boom") {
		t.Fatalf("unexpected report: %s", s)
	}
}

func TestRecoverWritesReportAndRescuesFields(t *testing.T) {
	quietStderr(t)
	code := 0
	oldExit := exitFn
	exitFn = func(c int) { code = c }
	defer func() { exitFn = oldExit }()

	dir := t.TempDir()
	fields := []domain.Field{
		{ID: "a", Page: 1, X: 0.25, Y: 0.125, Type: domain.FieldSignature},
		{ID: "b", Page: 2, X: 0.5, Y: 0.5, Type: domain.FieldDate},
	}
	func() {
		defer Recover(Options{Dir: dir, Document: "/tmp/contract.pdf", Fields: func() []domain.Field { return fields }})
		panic("boom")
	}()
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}

	var report, rescued string
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		switch {
		case strings.HasPrefix(e.Name(), "crash-"):
			report = filepath.Join(dir, e.Name())
		case strings.HasPrefix(e.Name(), "fields-"):
			rescued = filepath.Join(dir, e.Name())
		}
	}
	if report == "" || rescued == "" {
		t.Fatalf("missing files in %s: %v", dir, entries)
	}
	b, _ := os.ReadFile(report)
	for _, want := range []string{"Panic: boom", "Fields: 2", "page=2", "Document: contract.pdf"} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("report lacks %q:\n%s", want, b)
		}
	}
	var back []domain.Field
	raw, _ := os.ReadFile(rescued)
	if err := json.Unmarshal(raw, &back); err != nil || len(back) != 2 || back[1].ID != "b" {
		t.Fatalf("rescued fields = %+v err=%v", back, err)
	}
}

func TestRescueSurvivesPanickingSource(t *testing.T) {
	if got := rescue(func() []domain.Field { panic("again") }); got != nil {
		t.Fatalf("got %v", got)
	}
	if got := rescue(nil); got != nil {
		t.Fatalf("got %v", got)
	}
}

func TestStripDocument(t *testing.T) {
	in := []byte("A\nDocument: x.pdf\nB\n")
	if got := string(stripDocument(in, "/home/u/x.pdf")); got != "A\nB\n" {
		t.Fatalf("got %q", got)
	}
}

func TestGoRecoversOnItsGoroutine(t *testing.T) {
	quietStderr(t)
	codes := make(chan int, 1)
	oldExit := exitFn
	exitFn = func(c int) { codes <- c }
	defer func() { exitFn = oldExit }()

	dir := t.TempDir()
	Go(Options{Dir: dir}, func() { panic("render goroutine") })
	select {
	case c := <-codes:
		if c != 2 {
			t.Fatalf("exit code %d", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("panic not recovered")
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "crash-*.log"))
	if len(matches) != 1 {
		t.Fatalf("reports = %v", matches)
	}
}
