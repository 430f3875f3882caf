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
	"log/slog"

	"signly/internal/coords"
	"signly/internal/domain"
	"signly/internal/gesture"
	"signly/internal/history"
	"signly/internal/telemetry"
)

// Hit says what lies under a pointer position.
type Hit int

const (
	HitNone Hit = iota
	HitSurface
	HitMarker
	HitRemove
)

func (h Hit) String() string {
	switch h {
	case HitSurface:
		return "surface"
	case HitMarker:
		return "marker"
	case HitRemove:
		return "remove"
	}
	return "none"
}

// ClickResult is the outcome of Click.
type ClickResult int

const (
	ClickIgnored ClickResult = iota
	ClickPlaced
	ClickRemoved
)

// Marker is one field as drawn on the active page.
type Marker struct {
	ID   string
	Type domain.FieldType
	// Rect is the marker square in page pixels.
	Rect coords.Rect
	// Remove is the remove handle; zero while read-only.
	Remove   coords.Rect
	Label    string
	Title    string
	Color    domain.Color
	Italic   bool
	Value    string // sample value; empty unless sample data is shown
	Dragging bool
}

// Markers returns the active page's fields in drawing order.
func (e *Editor) Markers() []Marker {
	e.mu.Lock()
	vp, ro, show := e.vp, e.readOnly, e.showData
	e.mu.Unlock()
	if !vp.Valid() {
		return nil
	}
	captured := e.drag.Captured()
	list := e.store.ListForPage(e.nav.Active())
	out := make([]Marker, 0, len(list))
	now := e.now()
	for _, f := range list {
		rule := f.Type.Rule()
		m := Marker{
			ID:       f.ID,
			Type:     f.Type,
			Rect:     coords.MarkerRect(f.X, f.Y, vp, e.markerSize),
			Label:    rule.Label,
			Title:    rule.Title,
			Color:    rule.Color,
			Italic:   rule.Italic,
			Dragging: f.ID == captured && e.drag.State() == gesture.Dragging,
		}
		if !ro {
			m.Remove = coords.RemoveHandleRect(m.Rect)
		}
		if show {
			m.Value = e.sample.SampleValue(f.Type, now)
		}
		out = append(out, m)
	}
	return out
}

// HitTest finds what is under pos. Remove handles win over marker bodies,
// and later markers over earlier ones since they are drawn on top. Handles
// and markers may overhang the page; the bare surface ends at its edge.
func (e *Editor) HitTest(pos coords.Pt) (Hit, string) {
	vp := e.Viewport()
	if !vp.Valid() {
		return HitNone, ""
	}
	ms := e.Markers()
	for i := len(ms) - 1; i >= 0; i-- {
		if ms[i].Remove.W > 0 && ms[i].Remove.Contains(pos) {
			return HitRemove, ms[i].ID
		}
	}
	for i := len(ms) - 1; i >= 0; i-- {
		if ms[i].Rect.Contains(pos) {
			return HitMarker, ms[i].ID
		}
	}
	if pos.X < 0 || pos.Y < 0 || pos.X > vp.Width || pos.Y > vp.Height {
		return HitNone, ""
	}
	return HitSurface, ""
}

// PointerDown starts a gesture. A press on a marker captures it for
// dragging; a press on the bare page ends any stale click suppression.
func (e *Editor) PointerDown(pos coords.Pt, kind gesture.PointerKind) Hit {
	hit, id := e.HitTest(pos)
	switch hit {
	case HitMarker:
		for _, m := range e.Markers() {
			if m.ID == id {
				e.drag.Press(id, gesture.Event{Pos: pos, Kind: kind}, m.Rect.Min())
				break
			}
		}
	case HitSurface:
		e.placement.BeginGesture()
	}
	return hit
}

// PointerMove forwards a move to the live drag, if any.
func (e *Editor) PointerMove(pos coords.Pt, kind gesture.PointerKind) {
	if !e.bus.Move(gesture.Event{Pos: pos, Kind: kind}) {
		e.log.Debug("move without capture ignored")
	}
}

// PointerUp ends the live drag, if any.
func (e *Editor) PointerUp(pos coords.Pt, kind gesture.PointerKind) {
	e.bus.Up(gesture.Event{Pos: pos, Kind: kind})
}

// Click handles the click that follows a press and release at pos. A click
// on a remove handle removes that field and goes no further; a click on a
// marker never places; the click trailing a drag is swallowed.
func (e *Editor) Click(pos coords.Pt) ClickResult {
	hit, id := e.HitTest(pos)
	switch hit {
	case HitNone:
		return ClickIgnored
	case HitRemove:
		if e.RemoveField(id) {
			return ClickRemoved
		}
		return ClickIgnored
	case HitMarker:
		return ClickIgnored
	}

	page := e.nav.Active()
	before, err := history.Encode(e.store.List(), "place", e.now())
	f, ok := e.placement.Click(pos, e.Viewport(), page)
	if !ok {
		return ClickIgnored
	}
	if err == nil {
		e.hist.Capture(before)
		e.hist.Seal()
	}
	e.log.Debug("field placed", slog.String("id", f.ID), slog.Int("page", f.Page), slog.String("type", f.Type.String()))
	e.sink.Event(telemetry.EventFieldPlaced, map[string]any{"type": f.Type.String(), "page": f.Page})
	return ClickPlaced
}

// RemoveField deletes the field with id without going through the drag
// controller. It reports whether a field was removed.
func (e *Editor) RemoveField(id string) bool {
	if e.ReadOnly() {
		return false
	}
	f, ok := e.store.Get(id)
	if !ok {
		return false
	}
	if e.drag.Captured() == id {
		e.drag.Cancel()
	}
	e.capture("remove")
	e.hist.Seal()
	e.store.Remove(id)
	e.sink.Event(telemetry.EventFieldRemoved, map[string]any{"type": f.Type.String()})
	return true
}

func (e *Editor) capture(label string) {
	s, err := history.Encode(e.store.List(), label, e.now())
	if err != nil {
		e.log.Error("history capture failed", slog.Any("err", err))
		return
	}
	e.hist.Capture(s)
}

// Undo restores the field list before the last change.
func (e *Editor) Undo() bool {
	return e.restore(e.hist.Undo)
}

// Redo reapplies the last undone change.
func (e *Editor) Redo() bool {
	return e.restore(e.hist.Redo)
}

func (e *Editor) CanUndo() bool { return !e.ReadOnly() && e.hist.CanUndo() }
func (e *Editor) CanRedo() bool { return !e.ReadOnly() && e.hist.CanRedo() }

func (e *Editor) restore(step func(history.Snapshot) (history.Snapshot, bool)) bool {
	if e.ReadOnly() {
		return false
	}
	e.drag.Cancel()
	cur, err := history.Encode(e.store.List(), "current", e.now())
	if err != nil {
		e.log.Error("history encode failed", slog.Any("err", err))
		return false
	}
	s, ok := step(cur)
	if !ok {
		return false
	}
	list, err := s.Fields()
	if err != nil {
		e.log.Error("history decode failed", slog.Any("err", err))
		return false
	}
	e.store.Reset(list)
	return true
}
