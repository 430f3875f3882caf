/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"signly/internal/config"
	"signly/internal/coords"
	"signly/internal/document"
	"signly/internal/domain"
	"signly/internal/fields"
	"signly/internal/gesture"
)

var fixedNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) Event(name string, _ map[string]any) {
	r.mu.Lock()
	r.events = append(r.events, name)
	r.mu.Unlock()
}

func (r *recordingSink) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func testConfig() config.AppConfig {
	cfg := config.Defaults()
	cfg.Render.Scale = 1
	cfg.Render.ThumbnailScale = 0.1
	return cfg
}

// loaded returns an editor showing a blank document of 400x800 pages.
func loaded(t *testing.T, pages int, opts Options) *Editor {
	t.Helper()
	if opts.Config.ConfigVersion == 0 {
		opts.Config = testConfig()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	e := New(opts)
	t.Cleanup(e.Close)
	sizes := make([]domain.Viewport, pages)
	for i := range sizes {
		sizes[i] = domain.Viewport{Width: 400, Height: 800}
	}
	if err := e.Load(context.Background(), document.Blank(sizes...), ""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	waitPainted(t, e)
	return e
}

func waitPainted(t *testing.T, e *Editor) {
	t.Helper()
	s := e.Session()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("render did not finish")
	}
	if !s.Painted() {
		t.Fatalf("render not painted: %v", s.Err())
	}
}

// brokenPages serves a blank document except for the listed pages, whose
// page objects fail to load.
type brokenPages struct {
	document.Document
	broken map[int]bool
}

func (d brokenPages) Page(ctx context.Context, index int) (document.Page, error) {
	if d.broken[index] {
		return nil, &document.RenderError{Page: index, Err: errors.New("missing page object")}
	}
	return d.Document.Page(ctx, index)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

var ignoreID = cmpopts.IgnoreFields(domain.Field{}, "ID")

func TestPlaceSignatureOnFirstPage(t *testing.T) {
	e := loaded(t, 3, Options{})
	if got := e.Viewport(); got != (domain.Viewport{Width: 400, Height: 800}) {
		t.Fatalf("viewport = %+v", got)
	}
	if r := e.Click(coords.Pt{X: 100, Y: 100}); r != ClickPlaced {
		t.Fatalf("Click = %v, want placed", r)
	}
	want := []domain.Field{{Page: 1, X: 0.25, Y: 0.125, Type: domain.FieldSignature}}
	if diff := cmp.Diff(want, e.Fields(), ignoreID); diff != "" {
		t.Fatalf("fields (-want +got):\n%s", diff)
	}
	if img := e.Raster(); img == nil || img.Bounds().Dx() != 400 || img.Bounds().Dy() != 800 {
		t.Fatalf("raster = %v", img)
	}
}

func TestDragMovesFieldAndSwallowsTrailingClick(t *testing.T) {
	e := loaded(t, 1, Options{})
	e.Click(coords.Pt{X: 100, Y: 100})
	id := e.Fields()[0].ID

	// marker spans 68..132; grab it 12px inside the corner
	if hit := e.PointerDown(coords.Pt{X: 80, Y: 80}, gesture.Mouse); hit != HitMarker {
		t.Fatalf("PointerDown = %v, want marker", hit)
	}
	e.PointerMove(coords.Pt{X: 200, Y: 300}, gesture.Mouse)
	f, _ := e.Store().Get(id)
	if !near(f.X, 220.0/400) || !near(f.Y, 320.0/800) {
		t.Fatalf("after move = (%v,%v)", f.X, f.Y)
	}
	if ms := e.Markers(); len(ms) != 1 || !ms[0].Dragging {
		t.Fatalf("markers during drag = %+v", ms)
	}

	// past the corner the field clamps while the pointer leaves the page
	e.PointerMove(coords.Pt{X: 1000, Y: 1000}, gesture.Mouse)
	e.PointerUp(coords.Pt{X: 1000, Y: 1000}, gesture.Mouse)
	f, _ = e.Store().Get(id)
	if f.X != 1 || f.Y != 1 {
		t.Fatalf("after clamp = (%v,%v)", f.X, f.Y)
	}
	if n := e.bus.Len(); n != 0 {
		t.Fatalf("listeners after release = %d", n)
	}
	if r := e.Click(coords.Pt{X: 1000, Y: 1000}); r != ClickIgnored {
		t.Fatalf("trailing click = %v, want ignored", r)
	}
	if n := len(e.Fields()); n != 1 {
		t.Fatalf("fields = %d, want 1", n)
	}

	e.PointerDown(coords.Pt{X: 10, Y: 10}, gesture.Mouse)
	e.PointerUp(coords.Pt{X: 10, Y: 10}, gesture.Mouse)
	if r := e.Click(coords.Pt{X: 10, Y: 10}); r != ClickPlaced {
		t.Fatalf("next click = %v, want placed", r)
	}
}

func TestTouchDragUsesSamePath(t *testing.T) {
	e := loaded(t, 1, Options{})
	e.Click(coords.Pt{X: 100, Y: 100})
	e.PointerDown(coords.Pt{X: 100, Y: 100}, gesture.Touch)
	// a mouse move does not steer a touch drag
	e.PointerMove(coords.Pt{X: 300, Y: 300}, gesture.Mouse)
	e.PointerMove(coords.Pt{X: 140, Y: 500}, gesture.Touch)
	e.PointerUp(coords.Pt{X: 140, Y: 500}, gesture.Touch)
	f := e.Fields()[0]
	if !near(f.X, 0.35) || !near(f.Y, 0.625) {
		t.Fatalf("field = %+v", f)
	}
}

func TestStaleSuppressionClearedByNewPress(t *testing.T) {
	e := loaded(t, 1, Options{})
	e.Click(coords.Pt{X: 100, Y: 100})
	e.PointerDown(coords.Pt{X: 100, Y: 100}, gesture.Mouse)
	e.PointerUp(coords.Pt{X: 100, Y: 100}, gesture.Mouse)
	// the platform dropped the trailing click; the next press starts fresh
	e.PointerDown(coords.Pt{X: 300, Y: 600}, gesture.Mouse)
	e.PointerUp(coords.Pt{X: 300, Y: 600}, gesture.Mouse)
	if r := e.Click(coords.Pt{X: 300, Y: 600}); r != ClickPlaced {
		t.Fatalf("click = %v, want placed", r)
	}
}

func TestRemoveHandleRemovesWithoutPlacing(t *testing.T) {
	sink := &recordingSink{}
	e := loaded(t, 1, Options{Telemetry: sink})
	e.Click(coords.Pt{X: 100, Y: 100})
	e.Click(coords.Pt{X: 300, Y: 600})

	// handle of the first marker covers 122..142 x 58..78
	pos := coords.Pt{X: 130, Y: 65}
	if hit := e.PointerDown(pos, gesture.Mouse); hit != HitRemove {
		t.Fatalf("PointerDown = %v, want remove", hit)
	}
	e.PointerUp(pos, gesture.Mouse)
	if r := e.Click(pos); r != ClickRemoved {
		t.Fatalf("Click = %v, want removed", r)
	}
	want := []domain.Field{{Page: 1, X: 0.75, Y: 0.75, Type: domain.FieldSignature}}
	if diff := cmp.Diff(want, e.Fields(), ignoreID); diff != "" {
		t.Fatalf("fields (-want +got):\n%s", diff)
	}
	wantEvents := []string{"document_loaded", "field_placed", "field_placed", "field_removed"}
	if diff := cmp.Diff(wantEvents, sink.names()); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestRemoveUnknownFieldIsNoop(t *testing.T) {
	e := loaded(t, 1, Options{})
	e.Click(coords.Pt{X: 100, Y: 100})
	e.Click(coords.Pt{X: 200, Y: 200})
	before := e.Fields()
	if e.RemoveField("nope") {
		t.Fatal("RemoveField reported success for unknown id")
	}
	if diff := cmp.Diff(before, e.Fields()); diff != "" {
		t.Fatalf("fields changed:\n%s", diff)
	}
}

func TestUndoTreatsDragAsOneStep(t *testing.T) {
	e := loaded(t, 1, Options{})
	e.Click(coords.Pt{X: 100, Y: 100})
	e.PointerDown(coords.Pt{X: 100, Y: 100}, gesture.Mouse)
	for i := 1; i <= 5; i++ {
		e.PointerMove(coords.Pt{X: 100 + float64(i)*20, Y: 100}, gesture.Mouse)
	}
	e.PointerUp(coords.Pt{X: 200, Y: 100}, gesture.Mouse)
	e.Click(coords.Pt{X: 200, Y: 100})

	if !e.Undo() {
		t.Fatal("Undo drag failed")
	}
	if f := e.Fields()[0]; !near(f.X, 0.25) || !near(f.Y, 0.125) {
		t.Fatalf("after undo = %+v", f)
	}
	if !e.Undo() {
		t.Fatal("Undo place failed")
	}
	if n := len(e.Fields()); n != 0 {
		t.Fatalf("fields after second undo = %d", n)
	}
	if e.CanUndo() {
		t.Fatal("history should be exhausted")
	}
	if !e.Redo() || len(e.Fields()) != 1 {
		t.Fatalf("redo place: %+v", e.Fields())
	}
	if !e.Redo() || !near(e.Fields()[0].X, 0.5) {
		t.Fatalf("redo drag: %+v", e.Fields())
	}
}

func TestMarkersFollowActivePage(t *testing.T) {
	e := loaded(t, 3, Options{})
	e.SelectFieldType(domain.FieldDate)
	e.Click(coords.Pt{X: 100, Y: 100})

	if !e.SelectPage(2) {
		t.Fatal("SelectPage(2) = false")
	}
	waitPainted(t, e)
	if ms := e.Markers(); len(ms) != 0 {
		t.Fatalf("page 2 markers = %+v", ms)
	}
	e.SelectFieldType(domain.FieldInitials)
	e.Click(coords.Pt{X: 200, Y: 400})
	ms := e.Markers()
	if len(ms) != 1 || ms[0].Type != domain.FieldInitials || ms[0].Label != "Init" {
		t.Fatalf("page 2 markers = %+v", ms)
	}
	if want := (coords.Rect{X: 168, Y: 368, W: 64, H: 64}); ms[0].Rect != want {
		t.Fatalf("rect = %+v, want %+v", ms[0].Rect, want)
	}

	e.SelectPage(1)
	waitPainted(t, e)
	e.SetShowSampleData(true)
	ms = e.Markers()
	if len(ms) != 1 || ms[0].Value != "14/03/2025" {
		t.Fatalf("page 1 markers = %+v", ms)
	}
}

func TestSelectPageOutOfRangeIgnored(t *testing.T) {
	e := loaded(t, 2, Options{})
	for _, p := range []int{0, -1, 3, 1} {
		if e.SelectPage(p) {
			t.Fatalf("SelectPage(%d) = true", p)
		}
	}
	if e.ActivePage() != 1 {
		t.Fatalf("active = %d", e.ActivePage())
	}
	if !e.NextPage() || e.NextPage() || e.ActivePage() != 2 {
		t.Fatalf("NextPage stepping wrong, active = %d", e.ActivePage())
	}
}

func TestReadOnlyBlocksEditing(t *testing.T) {
	e := loaded(t, 1, Options{})
	e.Click(coords.Pt{X: 100, Y: 100})
	e.SetReadOnly(true)

	if r := e.Click(coords.Pt{X: 300, Y: 300}); r != ClickIgnored {
		t.Fatalf("click = %v", r)
	}
	e.PointerDown(coords.Pt{X: 100, Y: 100}, gesture.Mouse)
	e.PointerMove(coords.Pt{X: 300, Y: 300}, gesture.Mouse)
	e.PointerUp(coords.Pt{X: 300, Y: 300}, gesture.Mouse)
	want := []domain.Field{{Page: 1, X: 0.25, Y: 0.125, Type: domain.FieldSignature}}
	if diff := cmp.Diff(want, e.Fields(), ignoreID); diff != "" {
		t.Fatalf("fields (-want +got):\n%s", diff)
	}
	if ms := e.Markers(); ms[0].Remove != (coords.Rect{}) {
		t.Fatalf("remove handle shown while read-only: %+v", ms[0].Remove)
	}
	if e.Undo() {
		t.Fatal("Undo allowed while read-only")
	}
}

func TestOpenRejectsNonPDF(t *testing.T) {
	e := New(Options{Config: testConfig()})
	defer e.Close()
	err := e.Open(context.Background(), []byte("plain text"))
	var de *document.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DecodeError", err)
	}
	if e.PageCount() != 0 || e.Viewport().Valid() {
		t.Fatal("editor should remain unloaded")
	}
	if r := e.Click(coords.Pt{X: 10, Y: 10}); r != ClickIgnored {
		t.Fatalf("click on unloaded editor = %v", r)
	}
}

func TestThumbnailsForEveryPage(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}
	e := loaded(t, 3, Options{OnThumbnail: func(page int, _ image.Image) {
		mu.Lock()
		seen[page] = true
		mu.Unlock()
	}})
	e.ThumbnailJob().Wait()
	th := e.Thumbs()
	if len(th) != 3 {
		t.Fatalf("thumbs = %d", len(th))
	}
	for _, tb := range th {
		if tb.Image == nil {
			t.Fatalf("page %d has no thumbnail", tb.Page)
		}
		if tb.Active != (tb.Page == 1) {
			t.Fatalf("page %d active = %v", tb.Page, tb.Active)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("callbacks for %v", seen)
	}
}

func TestBoundStoreSeesEdits(t *testing.T) {
	var owned []domain.Field
	e := loaded(t, 1, Options{Store: fields.NewBound(fields.SliceBinding{Ptr: &owned})})
	e.Click(coords.Pt{X: 100, Y: 100})
	if len(owned) != 1 || owned[0].Page != 1 {
		t.Fatalf("owned = %+v", owned)
	}
}

func TestLoadKeepsFieldsAndClearsHistory(t *testing.T) {
	e := loaded(t, 2, Options{})
	e.Click(coords.Pt{X: 100, Y: 100})
	if err := e.Load(context.Background(), document.Blank(domain.Viewport{Width: 400, Height: 800}), ""); err != nil {
		t.Fatal(err)
	}
	waitPainted(t, e)
	if e.PageCount() != 1 || len(e.Fields()) != 1 {
		t.Fatalf("pages=%d fields=%d", e.PageCount(), len(e.Fields()))
	}
	if e.CanUndo() {
		t.Fatal("history survived a new document")
	}
}

func TestClickOutsidePageIgnored(t *testing.T) {
	e := loaded(t, 1, Options{})
	for _, pos := range []coords.Pt{{X: -150, Y: 2000}, {X: 401, Y: 10}, {X: 10, Y: -1}, {X: 200, Y: 801}} {
		if hit, _ := e.HitTest(pos); hit != HitNone {
			t.Errorf("HitTest(%v) = %v, want none", pos, hit)
		}
		if r := e.Click(pos); r != ClickIgnored {
			t.Errorf("Click(%v) = %v, want ignored", pos, r)
		}
	}
	if n := len(e.Fields()); n != 0 {
		t.Fatalf("placed %d fields from the margin", n)
	}

	// a field at the top edge has its remove handle above the page
	if r := e.Click(coords.Pt{X: 200, Y: 5}); r != ClickPlaced {
		t.Fatalf("Click = %v, want placed", r)
	}
	h := e.Markers()[0].Remove
	pos := coords.Pt{X: h.X + h.W/2, Y: h.Y + h.H/2}
	if pos.Y >= 0 {
		t.Fatalf("handle centre %v is on the page", pos)
	}
	if r := e.Click(pos); r != ClickRemoved {
		t.Fatalf("Click on overhanging handle = %v, want removed", r)
	}
}

func TestFailedPageSwitchClearsViewport(t *testing.T) {
	e := New(Options{Config: testConfig(), Now: func() time.Time { return fixedNow }})
	t.Cleanup(e.Close)
	page := domain.Viewport{Width: 400, Height: 800}
	doc := brokenPages{Document: document.Blank(page, page), broken: map[int]bool{2: true}}
	if err := e.Load(context.Background(), doc, ""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	waitPainted(t, e)

	if !e.SelectPage(2) {
		t.Fatalf("SelectPage(2) refused")
	}
	if vp := e.Viewport(); vp.Valid() {
		t.Fatalf("viewport of page 1 kept: %+v", vp)
	}
	if e.Session() != nil {
		t.Fatalf("session kept after failed switch")
	}
	if r := e.Click(coords.Pt{X: 100, Y: 100}); r != ClickIgnored {
		t.Fatalf("Click = %v, want ignored", r)
	}
	if n := len(e.Fields()); n != 0 {
		t.Fatalf("placed %d fields on an unrendered page", n)
	}
}
