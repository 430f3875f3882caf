/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package editor is the field placement surface: it ties the page render
// cache, the navigator, the field store and the pointer controllers
// together and exposes a view model the UI draws from.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"signly/internal/config"
	"signly/internal/document"
	"signly/internal/domain"
	"signly/internal/fields"
	"signly/internal/gesture"
	"signly/internal/history"
	applog "signly/internal/log"
	"signly/internal/nav"
	"signly/internal/render"
	"signly/internal/telemetry"
)

// Options configure an Editor.
type Options struct {
	// Store holds the fields. Nil means a private in-memory store.
	Store fields.Store
	// Cache renders pages. Nil means a cache without a persistent tier.
	Cache          *render.Cache
	Decoder        document.Decoder
	Config         config.AppConfig
	ReadOnly       bool
	ShowSampleData bool
	Telemetry      telemetry.Sink
	History        history.Config

	// OnPaint receives every raster painted for the active page. It runs on
	// a render goroutine with the cache lock held.
	OnPaint func(img image.Image)
	// OnThumbnail receives sidebar previews as they arrive, same rules as OnPaint.
	OnThumbnail func(page int, img image.Image)
	// OnChange runs after the field list, the active page or the mode changed.
	OnChange func()

	Now func() time.Time
}

// Editor is safe for concurrent use, although pointer events are expected
// to arrive in order from a single event loop.
type Editor struct {
	store     fields.Store
	cache     *render.Cache
	decoder   document.Decoder
	nav       *nav.Navigator
	bus       *gesture.Bus
	placement *gesture.Placement
	drag      *gesture.Drag
	hist      *history.Manager
	sink      telemetry.Sink
	canvas    *canvas
	log       *slog.Logger

	scale      float64
	thumbScale float64
	markerSize float64
	sample     domain.SampleData
	now        func() time.Time
	onThumb    func(int, image.Image)
	onChange   func()
	unsub      func()

	mu       sync.Mutex
	ctx      context.Context
	fp       string
	vp       domain.Viewport
	session  *render.Session
	thumbJob *render.ThumbnailJob
	thumbs   []image.Image
	readOnly bool
	showData bool
}

func New(opts Options) *Editor {
	cfg := opts.Config
	if cfg.ConfigVersion == 0 {
		cfg = config.Defaults()
	}
	cfg = cfg.Normalized()
	if opts.Store == nil {
		opts.Store = fields.NewMemory()
	}
	if opts.Cache == nil {
		opts.Cache = render.NewCache(render.Options{})
	}
	if opts.Decoder == nil {
		opts.Decoder = document.PDFDecoder{}
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Editor{
		store:      opts.Store,
		cache:      opts.Cache,
		decoder:    opts.Decoder,
		nav:        nav.New(0),
		bus:        &gesture.Bus{},
		hist:       history.NewManager(opts.History),
		sink:       opts.Telemetry,
		canvas:     &canvas{onPaint: opts.OnPaint},
		log:        applog.WithComponent("editor"),
		scale:      cfg.Render.Scale,
		thumbScale: cfg.Render.ThumbnailScale,
		markerSize: cfg.Markers.Size,
		sample:     domain.SampleData{Name: cfg.Sample.Name, Initials: cfg.Sample.Initials, DateLayout: cfg.Sample.DateLayout},
		now:        opts.Now,
		onThumb:    opts.OnThumbnail,
		onChange:   opts.OnChange,
		ctx:        context.Background(),
	}
	e.placement = gesture.NewPlacement(e.store)
	e.drag = gesture.NewDrag(e.store, e.bus, e.placement, gesture.DragOptions{
		MarkerSize:   e.markerSize,
		Viewport:     e.Viewport,
		BeforeMove:   func(string) { e.capture("move") },
		AfterRelease: func(string, bool) { e.hist.Seal(); e.changed() },
	})
	e.nav.OnChange(e.showPage)
	e.unsub = e.store.Subscribe(e.changed)
	e.SetReadOnly(opts.ReadOnly)
	e.SetShowSampleData(opts.ShowSampleData)
	return e
}

// Close cancels outstanding renders and detaches from the store.
func (e *Editor) Close() {
	e.drag.Cancel()
	e.mu.Lock()
	job := e.thumbJob
	e.thumbJob = nil
	e.mu.Unlock()
	if job != nil {
		job.Cancel()
	}
	e.cache.CancelTarget(e.canvas)
	e.unsub()
}

// Open validates and decodes data, then loads it. A *document.DecodeError
// leaves the editor in its previous state.
func (e *Editor) Open(ctx context.Context, data []byte) error {
	doc, err := e.decoder.Open(ctx, data)
	if err != nil {
		return err
	}
	return e.Load(ctx, doc, document.Fingerprint(data))
}

// Load shows doc starting at page 1. Placed fields are kept; the undo
// history and any live gesture are dropped.
func (e *Editor) Load(ctx context.Context, doc document.Document, fingerprint string) error {
	if doc == nil {
		return errors.New("load: nil document")
	}
	l := applog.WithOperation(e.log, "load")
	e.drag.Cancel()
	e.placement.BeginGesture()
	e.hist.Clear()

	e.mu.Lock()
	if e.thumbJob != nil {
		e.thumbJob.Cancel()
	}
	e.ctx = ctx
	e.fp = fingerprint
	e.vp = domain.Viewport{}
	e.thumbs = make([]image.Image, doc.PageCount())
	e.mu.Unlock()

	e.cache.SetDocument(doc, fingerprint)
	e.nav.Reset(doc.PageCount())
	if err := e.render(ctx, 1); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	job := e.cache.RenderThumbnails(ctx, e.thumbScale, e.thumbReady)
	e.mu.Lock()
	e.thumbJob = job
	e.mu.Unlock()

	l.Info("document loaded", slog.Int("pages", doc.PageCount()))
	e.sink.Event(telemetry.EventDocumentLoaded, map[string]any{"pages": doc.PageCount()})
	e.changed()
	return nil
}

func (e *Editor) thumbReady(page int, img image.Image) {
	e.mu.Lock()
	if page >= 1 && page <= len(e.thumbs) {
		e.thumbs[page-1] = img
	}
	fn := e.onThumb
	e.mu.Unlock()
	if fn != nil {
		fn(page, img)
	}
}

// render starts the active page render and publishes its viewport.
func (e *Editor) render(ctx context.Context, page int) error {
	vp, s, err := e.cache.RenderPage(ctx, e.canvas, page, e.scale)
	if err != nil {
		// nothing on this page is hit-testable until it renders
		e.mu.Lock()
		e.vp = domain.Viewport{}
		e.session = nil
		e.mu.Unlock()
		return err
	}
	e.mu.Lock()
	e.vp = vp
	e.session = s
	e.mu.Unlock()
	return nil
}

func (e *Editor) showPage(page int) {
	e.drag.Cancel()
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	if err := e.render(ctx, page); err != nil {
		applog.WithPage(e.log, page).Error("page switch failed", slog.Any("err", err))
	}
	e.changed()
}

// Document returns the loaded document, or nil.
func (e *Editor) Document() document.Document { return e.cache.Document() }

// Fingerprint identifies the loaded document's bytes; empty for documents
// passed to Load without one.
func (e *Editor) Fingerprint() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fp
}

// SelectPage activates page p. Out-of-range pages and the active page are ignored.
func (e *Editor) SelectPage(p int) bool { return e.nav.SelectPage(p) }

func (e *Editor) NextPage() bool { return e.nav.Next() }
func (e *Editor) PrevPage() bool { return e.nav.Prev() }

func (e *Editor) ActivePage() int { return e.nav.Active() }
func (e *Editor) PageCount() int  { return e.nav.PageCount() }

// Viewport is the pixel size of the active page at the editor's scale. It is
// the zero value until a document is loaded.
func (e *Editor) Viewport() domain.Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vp
}

// Session returns the most recent active page render.
func (e *Editor) Session() *render.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// ThumbnailJob returns the job rendering the sidebar, or nil before Load.
func (e *Editor) ThumbnailJob() *render.ThumbnailJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.thumbJob
}

// Thumbs is the sidebar model; pages without a preview yet carry a nil image.
func (e *Editor) Thumbs() []nav.Thumb {
	e.mu.Lock()
	imgs := make([]image.Image, len(e.thumbs))
	copy(imgs, e.thumbs)
	e.mu.Unlock()
	return e.nav.Thumbs(imgs)
}

// Raster returns the last painted image of the active page, or nil.
func (e *Editor) Raster() image.Image { return e.canvas.image() }

// Surface is the render target of the active page.
func (e *Editor) Surface() render.Surface { return e.canvas }

func (e *Editor) SetReadOnly(ro bool) {
	e.mu.Lock()
	e.readOnly = ro
	e.mu.Unlock()
	if ro {
		e.drag.Cancel()
	}
	e.placement.SetReadOnly(ro)
	e.drag.SetReadOnly(ro)
	e.changed()
}

func (e *Editor) ReadOnly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readOnly
}

// SetShowSampleData switches markers between their labels and sample values.
func (e *Editor) SetShowSampleData(on bool) {
	e.mu.Lock()
	e.showData = on
	e.mu.Unlock()
	e.changed()
}

// SelectFieldType sets the type of the next placed field.
func (e *Editor) SelectFieldType(t domain.FieldType) { e.placement.SetType(t) }

func (e *Editor) FieldType() domain.FieldType { return e.placement.Type() }

// Fields returns a copy of every placed field.
func (e *Editor) Fields() []domain.Field { return e.store.List() }

// Store exposes the field store for read access and subscriptions.
func (e *Editor) Store() fields.Store { return e.store }

func (e *Editor) changed() {
	if e.onChange != nil {
		e.onChange()
	}
}

// canvas is the editor's render target.
type canvas struct {
	mu      sync.Mutex
	img     image.Image
	onPaint func(image.Image)
}

func (c *canvas) Paint(img image.Image) {
	c.mu.Lock()
	c.img = img
	fn := c.onPaint
	c.mu.Unlock()
	if fn != nil {
		fn(img)
	}
}

func (c *canvas) image() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.img
}
