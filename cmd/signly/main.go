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
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"signly/internal/config"
	"signly/internal/crash"
	"signly/internal/document"
	"signly/internal/domain"
	"signly/internal/export"
	applog "signly/internal/log"
	"signly/internal/render"
	"signly/internal/storage"
	"signly/internal/telemetry"
	"signly/internal/ui"
	"signly/internal/version"
)

// errUsage makes main print the usage text and exit with status 2.
var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprintln(w, "Signly: place signature fields on PDF pages")
	fmt.Fprintf(w, "Version: %s\n", version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  signly version|-v|--version                    Show version")
	fmt.Fprintln(w, "  signly inspect <file.pdf>                      Print page count, page sizes and fingerprint")
	fmt.Fprintln(w, "  signly thumbs [--refresh] <file.pdf> <outdir>  Render sidebar thumbnails as PNG files")
	fmt.Fprintln(w, "  signly sample <out.pdf> [pages] [size]         Write a sample document (size: a4, letter, legal, WxH)")
	fmt.Fprintln(w, "  signly proof <file.pdf> <fields.json> <out.pdf> Write a preview with sample values")
	fmt.Fprintln(w, "  signly validate <fields.json>                  Check a field manifest")
	fmt.Fprintln(w, "  signly ui [<file.pdf>]                         Launch desktop UI (build with -tags fyne for full UI)")
}

func main() {
	cfg, cfgErr := config.Load()
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	l := applog.WithComponent("cli")
	if cfgErr != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", cfgErr))
	}
	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
	telemetry.SetDefault(telemetry.New(tcfg))
	defer crash.Recover(crashOptions(""))

	l.Debug("start", slog.Int("args", len(os.Args)))
	err := run(context.Background(), cfg, os.Args[1:], os.Stdout)
	switch {
	case errors.Is(err, errUsage):
		if err != errUsage {
			fmt.Println(err)
		}
		usage(os.Stdout)
		os.Exit(2)
	case err != nil:
		l.Error("command failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AppConfig, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	need := func(n int, what string) error {
		if len(args)-1 < n {
			return fmt.Errorf("%s requires %s: %w", args[0], what, errUsage)
		}
		return nil
	}
	switch args[0] {
	case "version", "--version", "-v":
		fmt.Fprintln(out, "Signly")
		fmt.Fprintln(out, version.String())
		return nil
	case "inspect":
		if err := need(1, "<file.pdf>"); err != nil {
			return err
		}
		return inspect(ctx, args[1], out)
	case "thumbs":
		refresh := len(args) > 1 && args[1] == "--refresh"
		if refresh {
			args = append(args[:1:1], args[2:]...)
		}
		if err := need(2, "<file.pdf> and <outdir>"); err != nil {
			return err
		}
		return thumbs(ctx, cfg, args[1], args[2], refresh, out)
	case "sample":
		if err := need(1, "<out.pdf>"); err != nil {
			return err
		}
		return sample(args[1:], out)
	case "proof":
		if err := need(3, "<file.pdf>, <fields.json> and <out.pdf>"); err != nil {
			return err
		}
		return proof(ctx, cfg, args[1], args[2], args[3], out)
	case "validate":
		if err := need(1, "<fields.json>"); err != nil {
			return err
		}
		return validate(args[1], out)
	case "ui":
		var path string
		if len(args) >= 2 {
			path = args[1]
		}
		return ui.Run(path)
	}
	return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
}

func openDocument(ctx context.Context, path string) (document.Document, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	doc, err := document.PDFDecoder{}.Open(ctx, data)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return doc, document.Fingerprint(data), nil
}

func inspect(ctx context.Context, path string, out io.Writer) error {
	doc, fp, err := openDocument(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "File: %s\n", filepath.Base(path))
	fmt.Fprintf(out, "Fingerprint: %s\n", fp)
	fmt.Fprintf(out, "Pages: %d\n", doc.PageCount())
	for i := 1; i <= doc.PageCount(); i++ {
		pg, err := doc.Page(ctx, i)
		if err != nil {
			return err
		}
		vp := pg.Viewport(1)
		fmt.Fprintf(out, "  page %d: %gx%g pt\n", i, vp.Width, vp.Height)
	}
	return nil
}

// crashOptions points crash reports at the shared temp directory.
func crashOptions(path string) crash.Options {
	return crash.Options{Dir: filepath.Join(os.TempDir(), "signly"), Document: path}
}

func thumbs(ctx context.Context, cfg config.AppConfig, path, outDir string, refresh bool, out io.Writer) error {
	doc, fp, err := openDocument(ctx, path)
	if err != nil {
		return err
	}
	co := crashOptions(path)
	opts := render.Options{Go: func(fn func()) { crash.Go(co, fn) }}
	if cfg.Cache.Enabled {
		if dir, err := cfg.Cache.CacheDir(); err == nil {
			tc, err := storage.OpenThumbs(ctx, dir, cfg.Cache.MaxBytes)
			if err != nil {
				applog.WithComponent("cli").Warn("thumbnail cache disabled", slog.Any("err", err))
			} else {
				defer tc.Close()
				opts.Store = tc
				if refresh {
					if err := tc.Forget(ctx, fp); err != nil {
						return err
					}
					fmt.Fprintln(out, "Dropped cached thumbnails")
				}
			}
		}
	}
	cache := render.NewCache(opts)
	defer cache.Close()
	cache.SetDocument(doc, fp)

	start := time.Now()
	images := cache.RenderThumbnails(ctx, cfg.Render.ThumbnailScale, nil).Wait()
	n, err := export.WritePagePNGs(outDir, images)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d of %d thumbnails to %s in %s\n", n, len(images), outDir, time.Since(start).Round(time.Millisecond))
	return nil
}

func sample(args []string, out io.Writer) error {
	pages := 3
	if len(args) >= 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid page count %q: %w", args[1], errUsage)
		}
		pages = n
	}
	size := export.PageA4
	if len(args) >= 3 {
		s, err := export.ParsePageSize(args[2])
		if err != nil {
			return err
		}
		size = s
	}
	sizes := make([]domain.Viewport, pages)
	for i := range sizes {
		sizes[i] = size
	}
	var buf bytes.Buffer
	if err := export.SampleDocument(&buf, sizes...); err != nil {
		return err
	}
	if err := writeFile(args[0], buf.Bytes()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d-page sample to %s\n", pages, args[0])
	return nil
}

func proof(ctx context.Context, cfg config.AppConfig, pdfPath, fieldsPath, outPath string, out io.Writer) error {
	doc, fp, err := openDocument(ctx, pdfPath)
	if err != nil {
		return err
	}
	f, err := os.Open(fieldsPath)
	if err != nil {
		return err
	}
	m, err := export.ReadManifest(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	if m.Document != "" && m.Document != fp {
		applog.WithComponent("cli").Warn("manifest was made for a different document",
			slog.String("manifest", m.Document), slog.String("document", fp))
	}
	var buf bytes.Buffer
	skipped, err := export.ProofPDF(ctx, doc, m.Fields, &buf, export.ProofOptions{
		Sample:     domain.SampleData{Name: cfg.Sample.Name, Initials: cfg.Sample.Initials, DateLayout: cfg.Sample.DateLayout},
		MarkerSize: cfg.Markers.Size,
		Labels:     true,
		Title:      filepath.Base(pdfPath),
	})
	if err != nil {
		return err
	}
	if err := writeFile(outPath, buf.Bytes()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote proof with %d fields to %s\n", len(m.Fields)-skipped, outPath)
	if skipped > 0 {
		fmt.Fprintf(out, "Skipped %d fields on pages the document does not have\n", skipped)
	}
	return nil
}

func validate(path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	m, err := export.ReadManifest(f)
	if err != nil {
		return err
	}
	perType := map[domain.FieldType]int{}
	for _, fl := range m.Fields {
		perType[fl.Type]++
	}
	fmt.Fprintf(out, "OK: %d fields\n", len(m.Fields))
	for _, t := range domain.FieldTypes {
		if perType[t] > 0 {
			fmt.Fprintf(out, "  %s: %d\n", t, perType[t])
		}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
