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
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"signly/internal/domain"
	applog "signly/internal/log"
	"signly/internal/telemetry"
	"signly/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Options tell Recover where to write and what state to rescue.
type Options struct {
	// Dir receives the report; empty means os.TempDir().
	Dir string
	// Fields returns the current field list. It is written next to the
	// report so placements survive the crash.
	Fields func() []domain.Field
	// Document names the loaded file, if any.
	Document string
}

// Recover captures a panic, logs it with a stack trace, writes a report and
// a field rescue file, then exits with status 2.
//
// Usage: defer crash.Recover(opts)
func Recover(opts Options) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	list := rescue(opts.Fields)
	reportPath, err := writeReport(opts, list, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if len(list) > 0 {
		if path, err := writeFields(opts.Dir, list); err != nil {
			l.Error("field rescue failed", slog.Any("err", err))
		} else {
			l.Info("fields rescued", slog.String("path", path), slog.Int("count", len(list)))
		}
	}

	if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
		l.Error("failed to write version info to stderr", slog.Any("err", err))
	}
	exitFn(2)
}

// rescue reads the field list without letting a second panic escape.
func rescue(fn func() []domain.Field) (list []domain.Field) {
	if fn == nil {
		return nil
	}
	defer func() {
		if recover() != nil {
			list = nil
		}
	}()
	return fn()
}

func reportDir(dir string) string {
	if dir == "" {
		return os.TempDir()
	}
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

func writeReport(opts Options, list []domain.Field, panicVal any, stack []byte) (string, error) {
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(reportDir(opts.Dir), fmt.Sprintf("crash-%s.log", stamp))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Signly Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if opts.Document != "" {
		_, _ = fmt.Fprintf(&buf, "Document: %s\n", filepath.Base(opts.Document))
	}
	_, _ = fmt.Fprintf(&buf, "Fields: %d\n", len(list))
	for _, f := range list {
		_, _ = fmt.Fprintf(&buf, "  %s page=%d x=%.4f y=%.4f type=%s\n", f.ID, f.Page, f.X, f.Y, f.Type)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}

	// field positions only; the upload carries no document name
	telemetry.UploadCrash(stripDocument(buf.Bytes(), opts.Document))
	return path, nil
}

func stripDocument(report []byte, doc string) []byte {
	if doc == "" {
		return report
	}
	return bytes.ReplaceAll(report, []byte("Document: "+filepath.Base(doc)+"\n"), nil)
}

func writeFields(dir string, list []domain.Field) (string, error) {
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(reportDir(dir), fmt.Sprintf("fields-%s.json", stamp))
	b, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, b, 0o644)
}

// Go runs fn on a new goroutine guarded by Recover.
func Go(opts Options, fn func()) {
	go func() {
		defer Recover(opts)
		fn()
	}()
}
