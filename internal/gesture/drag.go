/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package gesture

import (
	"log/slog"
	"sync"

	"signly/internal/coords"
	"signly/internal/domain"
	"signly/internal/fields"
	applog "signly/internal/log"
)

// DragState is the state of the drag controller.
type DragState int

const (
	AtRest DragState = iota
	Pressed
	Dragging
)

func (s DragState) String() string {
	switch s {
	case Pressed:
		return "pressed"
	case Dragging:
		return "dragging"
	}
	return "at-rest"
}

// DragOptions wires a Drag to its surroundings.
type DragOptions struct {
	MarkerSize float64
	// Viewport returns the current page viewport. Moves are ignored while it
	// is not valid.
	Viewport func() domain.Viewport
	// BeforeMove runs once per gesture, before the first position write.
	BeforeMove func(id string)
	// AfterRelease runs after the listeners are gone.
	AfterRelease func(id string, moved bool)
}

// Drag moves one captured field at a time. Move and up listeners live on the
// Bus only between Press and Release.
type Drag struct {
	mu        sync.Mutex
	store     fields.Store
	bus       *Bus
	placement *Placement
	opts      DragOptions
	log       *slog.Logger

	state    DragState
	id       string
	kind     PointerKind
	grab     coords.Pt
	readOnly bool
	handles  []Handle
}

func NewDrag(store fields.Store, bus *Bus, placement *Placement, opts DragOptions) *Drag {
	if opts.MarkerSize <= 0 {
		opts.MarkerSize = 64
	}
	if opts.Viewport == nil {
		opts.Viewport = func() domain.Viewport { return domain.Viewport{} }
	}
	return &Drag{
		store:     store,
		bus:       bus,
		placement: placement,
		opts:      opts,
		log:       applog.WithComponent("drag"),
	}
}

func (d *Drag) SetReadOnly(ro bool) {
	d.mu.Lock()
	d.readOnly = ro
	d.mu.Unlock()
}

func (d *Drag) State() DragState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Captured returns the id of the field being dragged, or "".
func (d *Drag) Captured() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == AtRest {
		return ""
	}
	return d.id
}

// Press captures field id. topLeft is the field's current on-screen corner;
// the offset to e.Pos is kept for the whole gesture. It reports whether the
// press was accepted.
func (d *Drag) Press(id string, e Event, topLeft coords.Pt) bool {
	d.mu.Lock()
	if d.readOnly || d.state != AtRest {
		d.mu.Unlock()
		return false
	}
	if _, ok := d.store.Get(id); !ok {
		d.mu.Unlock()
		d.log.Debug("press on unknown field", slog.String("id", id))
		return false
	}
	d.state = Pressed
	d.id = id
	d.kind = e.Kind
	d.grab = e.Pos.Sub(topLeft)
	d.handles = []Handle{d.bus.OnMove(d.move), d.bus.OnUp(d.release)}
	d.mu.Unlock()
	return true
}

func (d *Drag) move(e Event) {
	d.mu.Lock()
	if d.state == AtRest {
		d.mu.Unlock()
		d.log.Debug("move without capture ignored")
		return
	}
	if e.Kind != d.kind {
		d.mu.Unlock()
		return
	}
	vp := d.opts.Viewport()
	if !vp.Valid() {
		d.mu.Unlock()
		d.log.Debug("move ignored, no viewport")
		return
	}
	id := d.id
	first := d.state == Pressed
	c := coords.MarkerCenter(e.Pos, d.grab, d.opts.MarkerSize)
	d.state = Dragging
	d.mu.Unlock()

	if first && d.opts.BeforeMove != nil {
		d.opts.BeforeMove(id)
	}
	x, y := coords.ToNormalized(c.X, c.Y, vp)
	d.store.Update(id, fields.Patch{X: x, Y: y})
}

func (d *Drag) release(Event) {
	d.mu.Lock()
	if d.state == AtRest {
		d.mu.Unlock()
		return
	}
	hs := d.handles
	id := d.id
	moved := d.state == Dragging
	d.handles = nil
	d.state = AtRest
	d.id = ""
	d.mu.Unlock()

	for _, h := range hs {
		h.Remove()
	}
	d.placement.Suppress()
	if d.opts.AfterRelease != nil {
		d.opts.AfterRelease(id, moved)
	}
}

// Cancel drops an active capture without suppressing placement, e.g. when
// the page changes or the field is removed mid-gesture.
func (d *Drag) Cancel() {
	d.mu.Lock()
	hs := d.handles
	d.handles = nil
	d.state = AtRest
	d.id = ""
	d.mu.Unlock()
	for _, h := range hs {
		h.Remove()
	}
}
