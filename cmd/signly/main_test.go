/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"signly/internal/config"
	"signly/internal/export"
)

func testConfig(t *testing.T) config.AppConfig {
	cfg := config.Defaults()
	cfg.Cache.Dir = t.TempDir()
	return cfg
}

func runCLI(t *testing.T, cfg config.AppConfig, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), cfg, args, &out)
	return out.String(), err
}

func TestUsageErrors(t *testing.T) {
	cfg := testConfig(t)
	for _, args := range [][]string{nil, {"inspect"}, {"proof", "a", "b"}, {"frobnicate"}} {
		if _, err := runCLI(t, cfg, args...); !errors.Is(err, errUsage) {
			t.Errorf("run(%v) = %v, want usage error", args, err)
		}
	}
}

func TestSampleInspectThumbs(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	pdf := filepath.Join(dir, "sample.pdf")
	if _, err := runCLI(t, cfg, "sample", pdf, "2", "400x800"); err != nil {
		t.Fatalf("sample: %v", err)
	}
	out, err := runCLI(t, cfg, "inspect", pdf)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "Pages: 2") || !strings.Contains(out, "page 2: 400x800 pt") {
		t.Fatalf("inspect output:\n%s", out)
	}

	thumbDir := filepath.Join(dir, "thumbs")
	out, err = runCLI(t, cfg, "thumbs", pdf, thumbDir)
	if err != nil {
		t.Fatalf("thumbs: %v", err)
	}
	if !strings.Contains(out, "Wrote 2 of 2 thumbnails") {
		t.Fatalf("thumbs output: %s", out)
	}
	if _, err := os.Stat(export.PagePNGPath(thumbDir, 2)); err != nil {
		t.Fatalf("thumbnail missing: %v", err)
	}

	out, err = runCLI(t, cfg, "thumbs", "--refresh", pdf, thumbDir)
	if err != nil {
		t.Fatalf("thumbs --refresh: %v", err)
	}
	if !strings.Contains(out, "Dropped cached thumbnails") || !strings.Contains(out, "Wrote 2 of 2 thumbnails") {
		t.Fatalf("thumbs --refresh output: %s", out)
	}
	if _, err := runCLI(t, cfg, "thumbs", "--refresh", pdf); !errors.Is(err, errUsage) {
		t.Fatalf("thumbs --refresh without outdir = %v", err)
	}
}

func TestInspectRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	if err := os.WriteFile(path, []byte("just text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, testConfig(t), "inspect", path); err == nil || !strings.Contains(err.Error(), "notes.pdf") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateAndProof(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	pdf := filepath.Join(dir, "doc.pdf")
	if _, err := runCLI(t, cfg, "sample", pdf, "1"); err != nil {
		t.Fatal(err)
	}
	fields := filepath.Join(dir, "fields.json")
	list := `[{"id":"a","page":1,"x":0.2,"y":0.8,"type":"signature"},
		{"id":"b","page":1,"x":0.8,"y":0.8,"type":"date"},
		{"id":"c","page":4,"x":0.5,"y":0.5,"type":"name"}]`
	if err := os.WriteFile(fields, []byte(list), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, cfg, "validate", fields)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "OK: 3 fields") || !strings.Contains(out, "date: 1") {
		t.Fatalf("validate output:\n%s", out)
	}

	proofPath := filepath.Join(dir, "out", "proof.pdf")
	out, err = runCLI(t, cfg, "proof", pdf, fields, proofPath)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if !strings.Contains(out, "with 2 fields") || !strings.Contains(out, "Skipped 1") {
		t.Fatalf("proof output:\n%s", out)
	}
	if st, err := os.Stat(proofPath); err != nil || st.Size() == 0 {
		t.Fatalf("proof file: %v", err)
	}
}

func TestValidateReportsProblems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`[{"id":"a","page":1,"x":2,"y":0,"type":"stamp"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := runCLI(t, testConfig(t), "validate", path)
	var ve *export.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v", err)
	}
}
