//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"signly/internal/config"
	"signly/internal/crash"
	"signly/internal/document"
	"signly/internal/domain"
	"signly/internal/editor"
	"signly/internal/export"
	applog "signly/internal/log"
	"signly/internal/render"
	"signly/internal/storage"
	"signly/internal/telemetry"
	"signly/internal/wizard"
)

// Run starts the desktop UI. Pass an optional PDF path to open immediately.
func Run(path string) error {
	cfg, err := config.Load()
	l := applog.WithComponent("ui")
	if err != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", err))
		cfg = config.Defaults()
	}
	l.Info("starting UI")

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
	tel := telemetry.New(tcfg)
	telemetry.SetDefault(tel)
	defer tel.Close()

	wiz := wizard.New(tel)
	crashOpts := crash.Options{Dir: crashDir(cfg), Fields: wiz.Fields, Document: path}
	defer crash.Recover(crashOpts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var thumbStore render.ThumbStore
	if cfg.Cache.Enabled {
		if dir, err := cfg.Cache.CacheDir(); err != nil {
			l.Warn("no cache dir", slog.Any("err", err))
		} else if tc, err := storage.OpenThumbs(ctx, dir, cfg.Cache.MaxBytes); err != nil {
			l.Warn("thumbnail cache disabled", slog.Any("err", err))
		} else {
			thumbStore = tc
			defer tc.Close()
		}
	}

	fyneApp := app.NewWithID("signly")
	w := fyneApp.NewWindow("Signly")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1200)
	winH := prefs.IntWithFallback("window.height", 860)
	w.Resize(fyne.NewSize(float32(max(winW, 800)), float32(max(winH, 600))))

	var (
		pc        *PageCanvas
		thumbList *widget.List
		refresh   func()
		docName   string
	)
	ed := editor.New(editor.Options{
		Store: wiz.Store(),
		Cache: render.NewCache(render.Options{
			Store: thumbStore,
			Go:    func(fn func()) { crash.Go(crashOpts, fn) },
		}),
		Config:    cfg,
		Telemetry: tel,
		OnPaint: func(img image.Image) {
			fyne.Do(func() {
				if pc != nil {
					pc.SetRaster(img)
				}
			})
		},
		OnThumbnail: func(int, image.Image) {
			fyne.Do(func() {
				if thumbList != nil {
					thumbList.Refresh()
				}
			})
		},
		OnChange: func() {
			fyne.Do(func() {
				if refresh != nil {
					refresh()
				}
			})
		},
	})
	defer ed.Close()

	status := widget.NewLabel("Open a PDF to start placing fields")
	pc = NewPageCanvas(ed)

	// sidebar
	thumbList = widget.NewList(
		func() int { return ed.PageCount() },
		func() fyne.CanvasObject {
			img := canvas.NewImageFromImage(nil)
			img.FillMode = canvas.ImageFillContain
			img.SetMinSize(fyne.NewSize(110, 140))
			return container.NewBorder(nil, widget.NewLabel(""), nil, nil, img)
		},
		func(id widget.ListItemID, o fyne.CanvasObject) {
			th := ed.Thumbs()
			if id < 0 || int(id) >= len(th) {
				return
			}
			c := o.(*fyne.Container)
			for _, obj := range c.Objects {
				switch v := obj.(type) {
				case *canvas.Image:
					v.Image = th[id].Image
					v.Refresh()
				case *widget.Label:
					text := fmt.Sprintf("Page %d", th[id].Page)
					if th[id].Active {
						text = "▶ " + text
					}
					v.SetText(text)
				}
			}
		},
	)
	thumbList.OnSelected = func(id widget.ListItemID) {
		ed.SelectPage(int(id) + 1)
	}

	// field type selector
	titles := make([]string, len(domain.FieldTypes))
	byTitle := map[string]domain.FieldType{}
	for i, t := range domain.FieldTypes {
		titles[i] = t.Rule().Title
		byTitle[titles[i]] = t
	}
	typeSelect := widget.NewSelect(titles, func(s string) { ed.SelectFieldType(byTitle[s]) })
	typeSelect.SetSelected(domain.DefaultFieldType.Rule().Title)

	load := func(name string, data []byte) {
		if err := ed.Open(ctx, data); err != nil {
			var de *document.DecodeError
			if errors.As(err, &de) {
				dialog.ShowError(fmt.Errorf("%s could not be read as a PDF. Please choose another file", filepath.Base(name)), w)
			} else {
				dialog.ShowError(err, w)
			}
			l.Error("open failed", slog.String("name", name), slog.Any("err", err))
			return
		}
		docName = filepath.Base(name)
		w.SetTitle("Signly - " + docName)
		thumbList.UnselectAll()
		thumbList.Refresh()
	}
	openPath := func(p string) {
		data, err := os.ReadFile(p)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		load(p, data)
		addRecentDocument(prefs, p)
	}

	recentSelect := widget.NewSelect(nil, nil)
	recentSelect.PlaceHolder = "Recent…"
	reloadRecent := func() {
		recentSelect.Options = loadRecentDocuments(prefs)
		recentSelect.Refresh()
	}
	recentSelect.OnChanged = func(p string) {
		if p != "" {
			openPath(p)
			recentSelect.ClearSelected()
			reloadRecent()
		}
	}
	reloadRecent()

	openBtn := widget.NewButton("Open PDF…", func() {
		d := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
			if err != nil || rc == nil {
				return
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				dialog.ShowError(err, w)
				return
			}
			load(rc.URI().Name(), data)
			if p := rc.URI().Path(); p != "" {
				addRecentDocument(prefs, p)
				reloadRecent()
			}
		}, w)
		d.SetFilter(fstorage.NewExtensionFileFilter([]string{".pdf"}))
		d.Show()
	})
	undoBtn := widget.NewButton("Undo", func() { ed.Undo() })
	redoBtn := widget.NewButton("Redo", func() { ed.Redo() })
	prevBtn := widget.NewButton("◀", func() { ed.PrevPage() })
	nextPageBtn := widget.NewButton("▶", func() { ed.NextPage() })
	pageLabel := widget.NewLabel("")

	// wizard bar
	stepLabel := widget.NewLabel("")
	backBtn := widget.NewButton("Back", func() { wiz.Back() })
	nextBtn := widget.NewButton("Next", func() { wiz.Next() })
	resetBtn := widget.NewButton("Reset", func() {
		dialog.ShowConfirm("Reset", "Remove every placed field and start over?", func(ok bool) {
			if ok {
				wiz.Reset()
			}
		}, w)
	})
	manifest := func() export.Manifest {
		return export.NewManifest(wiz.Fields(), ed.Fingerprint(), docName, ed.PageCount(), time.Now())
	}
	copyBtn := widget.NewButton("Copy signing manifest", func() {
		b, err := json.MarshalIndent(manifest(), "", "  ")
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		w.Clipboard().SetContent(string(b))
		status.SetText(fmt.Sprintf("Manifest with %d fields copied", len(wiz.Fields())))
	})
	saveManifestBtn := widget.NewButton("Save manifest…", func() {
		d := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
			if err != nil || wc == nil {
				return
			}
			defer wc.Close()
			if err := export.WriteManifest(wc, manifest()); err != nil {
				dialog.ShowError(err, w)
			}
		}, w)
		d.SetFileName(strings.TrimSuffix(docName, filepath.Ext(docName)) + "-fields.json")
		d.Show()
	})
	proofBtn := widget.NewButton("Save proof PDF…", func() {
		doc := ed.Document()
		if doc == nil {
			return
		}
		d := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
			if err != nil || wc == nil {
				return
			}
			defer wc.Close()
			_, err = export.ProofPDF(ctx, doc, wiz.Fields(), wc, export.ProofOptions{
				Sample:     domain.SampleData{Name: cfg.Sample.Name, Initials: cfg.Sample.Initials, DateLayout: cfg.Sample.DateLayout},
				MarkerSize: cfg.Markers.Size,
				Labels:     true,
				Title:      docName,
			})
			if err != nil {
				dialog.ShowError(err, w)
			}
		}, w)
		d.SetFileName(strings.TrimSuffix(docName, filepath.Ext(docName)) + "-proof.pdf")
		d.Show()
	})
	sendBox := container.NewHBox(copyBtn, saveManifestBtn, proofBtn)

	refresh = func() {
		step := wiz.Step()
		stepLabel.SetText(fmt.Sprintf("Step %d of %d: %s", int(step)+1, len(wizard.Steps), step.Title()))
		if wiz.CanBack() {
			backBtn.Enable()
		} else {
			backBtn.Disable()
		}
		if wiz.CanNext() {
			nextBtn.Enable()
		} else {
			nextBtn.Disable()
		}
		if step == wizard.StepSend {
			sendBox.Show()
		} else {
			sendBox.Hide()
		}
		if ed.CanUndo() {
			undoBtn.Enable()
		} else {
			undoBtn.Disable()
		}
		if ed.CanRedo() {
			redoBtn.Enable()
		} else {
			redoBtn.Disable()
		}
		if ed.ReadOnly() {
			typeSelect.Disable()
		} else {
			typeSelect.Enable()
		}
		if n := ed.PageCount(); n > 0 {
			pageLabel.SetText(fmt.Sprintf("%d / %d", ed.ActivePage(), n))
			status.SetText(fmt.Sprintf("%d fields placed", len(wiz.Fields())))
		}
		pc.Refresh()
		thumbList.Refresh()
	}
	wiz.OnStep(func(wizard.Step) {
		ed.SetReadOnly(wiz.ReadOnly())
		ed.SetShowSampleData(wiz.ShowSampleData())
	})

	top := container.NewHBox(openBtn, recentSelect, widget.NewSeparator(),
		widget.NewLabel("Field:"), typeSelect, undoBtn, redoBtn, widget.NewSeparator(),
		prevBtn, pageLabel, nextPageBtn)
	bottom := container.NewVBox(
		widget.NewSeparator(),
		container.NewHBox(stepLabel, backBtn, nextBtn, resetBtn, sendBox),
		status,
	)
	left := container.NewBorder(widget.NewLabel("Pages"), nil, nil, nil, thumbList)
	split := container.NewHSplit(left, container.NewScroll(pc))
	split.Offset = 0.16
	w.SetContent(container.NewBorder(top, bottom, nil, nil, split))

	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		w.Close()
	})

	refresh()
	if path != "" {
		openPath(path)
	}
	w.ShowAndRun()
	tel.Flush(context.Background())
	return nil
}

func crashDir(cfg config.AppConfig) string {
	dir, err := cfg.Cache.CacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "crash")
}

// Recent document persistence helpers
const recentPrefsKey = "recent.documents"
const recentMax = 10

func loadRecentDocuments(p fyne.Preferences) []string {
	raw := p.StringWithFallback(recentPrefsKey, "")
	var items []string
	if strings.TrimSpace(raw) != "" {
		var tmp []string
		if err := json.Unmarshal([]byte(raw), &tmp); err == nil {
			items = tmp
		}
	}
	// Filter out files that are gone
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := os.Stat(s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func saveRecentDocuments(p fyne.Preferences, items []string) {
	if len(items) > recentMax {
		items = items[:recentMax]
	}
	b, _ := json.Marshal(items)
	p.SetString(recentPrefsKey, string(b))
}

func addRecentDocument(p fyne.Preferences, path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	abs, _ := filepath.Abs(path)
	rec := loadRecentDocuments(p)
	out := make([]string, 0, 1+len(rec))
	out = append(out, abs)
	for _, s := range rec {
		// de-dup (case-insensitive on Windows)
		if strings.EqualFold(s, abs) {
			continue
		}
		out = append(out, s)
	}
	saveRecentDocuments(p, out)
}
