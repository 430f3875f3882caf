/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package render turns document pages into rasters for the active page view
// and the thumbnail sidebar.
//
// Every target Surface has at most one live Session. Starting a render for a
// target cancels its previous session, and a session's result is painted only
// if it is still the target's current session when the raster is ready.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/singleflight"

	"signly/internal/document"
	"signly/internal/domain"
	applog "signly/internal/log"
)

// Purpose separates rasters of the same page and scale that serve different views.
type Purpose int

const (
	PurposeView Purpose = iota
	PurposeThumbnail
)

func (p Purpose) String() string {
	if p == PurposeThumbnail {
		return "thumbnail"
	}
	return "view"
}

// Key identifies one cached raster.
type Key struct {
	Page    int
	Scale   float64
	Purpose Purpose
}

// Surface receives finished rasters. Paint is called with the cache lock
// held and must not call back into the Cache; images are shared and must
// not be modified.
type Surface interface {
	Paint(img image.Image)
}

// ThumbStore is an optional persistent tier for thumbnails, keyed by document
// fingerprint. GetOrCreateThumb returns the stored raster or calls create and
// stores its result. When storing fails the created image is returned along
// with the error.
type ThumbStore interface {
	GetOrCreateThumb(ctx context.Context, doc string, page int, scale float64, purpose string, create func() (image.Image, error)) (image.Image, error)
}

// DefaultMaxPixels bounds a single raster (about 128 MiB of RGBA).
const DefaultMaxPixels = 1 << 25

// ErrNoDocument is returned when nothing has been loaded.
var ErrNoDocument = errors.New("no document loaded")

// Options configure a Cache.
type Options struct {
	Store ThumbStore
	// MaxViewEntries bounds the number of full-size rasters kept in memory.
	MaxViewEntries int
	// MaxPixels rejects pages whose raster would be larger; 0 selects
	// DefaultMaxPixels.
	MaxPixels int
	// Go runs background renders. nil starts a plain goroutine.
	Go func(fn func())
}

// Cache owns the rasters of the loaded document and the live render sessions.
type Cache struct {
	mu sync.Mutex

	doc       document.Document
	fp        string
	docCtx    context.Context
	docCancel context.CancelFunc

	entries   map[Key]*image.RGBA
	viewOrder []Key

	sessions map[Surface]*Session
	thumbs   *ThumbnailJob

	sf        singleflight.Group
	gen       uint64
	store     ThumbStore
	max       int
	maxPixels int
	spawn     func(fn func())
	log       *slog.Logger
}

func NewCache(opts Options) *Cache {
	if opts.MaxViewEntries <= 0 {
		opts.MaxViewEntries = 8
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	if opts.Go == nil {
		opts.Go = func(fn func()) { go fn() }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		docCtx:    ctx,
		docCancel: cancel,
		entries:   map[Key]*image.RGBA{},
		sessions:  map[Surface]*Session{},
		store:     opts.Store,
		max:       opts.MaxViewEntries,
		maxPixels: opts.MaxPixels,
		spawn:     opts.Go,
		log:       applog.WithComponent("render"),
	}
}

// SetDocument replaces the loaded document. Live sessions and the thumbnail
// job are cancelled and in-memory rasters dropped. fingerprint namespaces the
// persistent tier; leave it empty to bypass the tier.
func (c *Cache) SetDocument(doc document.Document, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docCancel()
	for t, s := range c.sessions {
		s.cancel()
		delete(c.sessions, t)
	}
	if c.thumbs != nil {
		c.thumbs.cancel()
		c.thumbs = nil
	}
	c.gen++
	c.doc = doc
	c.fp = fingerprint
	c.docCtx, c.docCancel = context.WithCancel(context.Background())
	c.entries = map[Key]*image.RGBA{}
	c.viewOrder = nil
}

// Document returns the loaded document, or nil.
func (c *Cache) Document() document.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

// Len is the number of rasters held in memory.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close cancels all outstanding work.
func (c *Cache) Close() { c.SetDocument(nil, "") }

// Raster returns the raster for (page, scale, purpose), rendering it at most
// once. Concurrent identical requests share one decode.
func (c *Cache) Raster(ctx context.Context, page int, scale float64, purpose Purpose) (*image.RGBA, error) {
	key := Key{Page: page, Scale: scale, Purpose: purpose}
	c.mu.Lock()
	if c.doc == nil {
		c.mu.Unlock()
		return nil, ErrNoDocument
	}
	if img, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return img, nil
	}
	gen, doc, fp, docCtx := c.gen, c.doc, c.fp, c.docCtx
	c.mu.Unlock()

	sfKey := fmt.Sprintf("%d/%d/%g/%d", gen, page, scale, purpose)
	ch := c.sf.DoChan(sfKey, func() (any, error) {
		img, err := c.produce(docCtx, doc, fp, key)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.putLocked(key, img)
		}
		c.mu.Unlock()
		return img, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*image.RGBA), nil
	}
}

func (c *Cache) produce(ctx context.Context, doc document.Document, fp string, key Key) (*image.RGBA, error) {
	if key.Purpose != PurposeThumbnail || c.store == nil || fp == "" {
		return c.rasterize(ctx, doc, key)
	}
	var rerr error
	img, err := c.store.GetOrCreateThumb(ctx, fp, key.Page, key.Scale, key.Purpose.String(), func() (image.Image, error) {
		r, err := c.rasterize(ctx, doc, key)
		if err != nil {
			rerr = err
			return nil, err
		}
		return r, nil
	})
	switch {
	case rerr != nil:
		return nil, rerr
	case img != nil:
		if err != nil {
			c.log.Warn("thumbnail store write failed", slog.Int("page", key.Page), slog.Any("err", err))
		}
		return toRGBA(img), nil
	case err != nil:
		c.log.Warn("thumbnail store read failed", slog.Int("page", key.Page), slog.Any("err", err))
	}
	return c.rasterize(ctx, doc, key)
}

func (c *Cache) rasterize(ctx context.Context, doc document.Document, key Key) (*image.RGBA, error) {
	if img := c.downscaleFromView(key); img != nil {
		return img, nil
	}
	p, err := doc.Page(ctx, key.Page)
	if err != nil {
		return nil, asRenderError(key.Page, err)
	}
	vp := p.Viewport(key.Scale)
	if !vp.Valid() {
		return nil, &document.RenderError{Page: key.Page, Err: errors.New("empty viewport")}
	}
	if w, h := math.Ceil(vp.Width), math.Ceil(vp.Height); w*h > float64(c.maxPixels) {
		return nil, &document.RenderError{Page: key.Page, Err: fmt.Errorf("%gx%g raster exceeds %d pixels", w, h, c.maxPixels)}
	}
	img := image.NewRGBA(image.Rect(0, 0, pixels(vp.Width), pixels(vp.Height)))
	if err := p.Render(ctx, img, vp); err != nil {
		return nil, asRenderError(key.Page, err)
	}
	return img, nil
}

// downscaleFromView derives a thumbnail from a larger raster of the same page
// when one is already in memory.
func (c *Cache) downscaleFromView(key Key) *image.RGBA {
	if key.Purpose != PurposeThumbnail {
		return nil
	}
	c.mu.Lock()
	var src *image.RGBA
	var best float64
	for k, img := range c.entries {
		if k.Page == key.Page && k.Purpose == PurposeView && k.Scale > key.Scale && (src == nil || k.Scale < best) {
			src, best = img, k.Scale
		}
	}
	c.mu.Unlock()
	if src == nil {
		return nil
	}
	k := key.Scale / best
	b := src.Bounds()
	w, h := pixels(float64(b.Dx())*k), pixels(float64(b.Dy())*k)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

func (c *Cache) putLocked(key Key, img *image.RGBA) {
	if _, ok := c.entries[key]; ok {
		return
	}
	c.entries[key] = img
	if key.Purpose != PurposeView {
		return
	}
	c.viewOrder = append(c.viewOrder, key)
	for len(c.viewOrder) > c.max {
		delete(c.entries, c.viewOrder[0])
		c.viewOrder = c.viewOrder[1:]
	}
}

func asRenderError(page int, err error) error {
	var re *document.RenderError
	if errors.As(err, &re) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &document.RenderError{Page: page, Err: err}
}

func pixels(v float64) int {
	n := int(math.Ceil(v))
	if n < 1 {
		return 1
	}
	return n
}

func toRGBA(img image.Image) *image.RGBA {
	if r, ok := img.(*image.RGBA); ok {
		return r
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// Viewport returns the pixel size of page at scale without rendering it.
func (c *Cache) Viewport(ctx context.Context, page int, scale float64) (domain.Viewport, error) {
	doc := c.Document()
	if doc == nil {
		return domain.Viewport{}, ErrNoDocument
	}
	p, err := doc.Page(ctx, page)
	if err != nil {
		return domain.Viewport{}, err
	}
	return p.Viewport(scale), nil
}
