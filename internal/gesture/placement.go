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

// PlacementState is the state of the placement controller.
type PlacementState int

const (
	// Idle accepts the next click as a placement.
	Idle PlacementState = iota
	// Suppressed swallows the trailing click of a drag release.
	Suppressed
)

func (s PlacementState) String() string {
	if s == Suppressed {
		return "suppressed"
	}
	return "idle"
}

// Placement creates fields from clicks on the page surface.
type Placement struct {
	mu       sync.Mutex
	store    fields.Store
	state    PlacementState
	typ      domain.FieldType
	readOnly bool
	log      *slog.Logger
}

func NewPlacement(store fields.Store) *Placement {
	return &Placement{
		store: store,
		typ:   domain.DefaultFieldType,
		log:   applog.WithComponent("placement"),
	}
}

// SetType selects the type of the next placed field. Unknown tags are ignored.
func (p *Placement) SetType(t domain.FieldType) {
	if !t.Valid() {
		return
	}
	p.mu.Lock()
	p.typ = t
	p.mu.Unlock()
}

func (p *Placement) Type() domain.FieldType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typ
}

func (p *Placement) SetReadOnly(ro bool) {
	p.mu.Lock()
	p.readOnly = ro
	p.mu.Unlock()
}

func (p *Placement) State() PlacementState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Suppress makes the next click a no-op.
func (p *Placement) Suppress() {
	p.mu.Lock()
	p.state = Suppressed
	p.mu.Unlock()
}

// BeginGesture is called when a new press starts on the bare surface. A
// suppression left over from a drag whose trailing click never arrived ends here.
func (p *Placement) BeginGesture() {
	p.mu.Lock()
	p.state = Idle
	p.mu.Unlock()
}

// Click places a field of the selected type centred on pos. It reports
// whether a field was created.
func (p *Placement) Click(pos coords.Pt, vp domain.Viewport, page int) (domain.Field, bool) {
	p.mu.Lock()
	if p.state == Suppressed {
		p.state = Idle
		p.mu.Unlock()
		p.log.Debug("click swallowed after drag")
		return domain.Field{}, false
	}
	if p.readOnly {
		p.mu.Unlock()
		return domain.Field{}, false
	}
	typ := p.typ
	p.mu.Unlock()

	if !vp.Valid() || page < 1 {
		p.log.Debug("click ignored", slog.Int("page", page), slog.Float64("vw", vp.Width), slog.Float64("vh", vp.Height))
		return domain.Field{}, false
	}
	x, y := coords.ToNormalized(pos.X, pos.Y, vp)
	f := p.store.Add(domain.Field{Page: page, X: x, Y: y, Type: typ})
	return f, true
}
