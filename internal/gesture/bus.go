/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package gesture turns pointer events into field mutations: Placement
// creates fields on clicks, Drag repositions an existing field.
package gesture

import (
	"sync"

	"signly/internal/coords"
)

// PointerKind distinguishes mouse from touch input. Both follow the same path.
type PointerKind int

const (
	Mouse PointerKind = iota
	Touch
)

func (k PointerKind) String() string {
	if k == Touch {
		return "touch"
	}
	return "mouse"
}

// Event is a pointer event in viewport pixels.
type Event struct {
	Pos  coords.Pt
	Kind PointerKind
}

type eventType int

const (
	evMove eventType = iota
	evUp
)

type listener struct {
	id uint32
	fn func(Event)
}

// Bus delivers move and up events that occur anywhere over the viewport.
// Listeners are registered for the duration of one gesture.
type Bus struct {
	mu     sync.Mutex
	move   []listener
	up     []listener
	nextID uint32
}

// Handle removes a registered listener.
type Handle struct {
	id  uint32
	bus *Bus
	ev  eventType
}

// Remove unregisters the listener. It is safe to call more than once and on
// the zero Handle.
func (h Handle) Remove() {
	if h.bus == nil {
		return
	}
	h.bus.mu.Lock()
	defer h.bus.mu.Unlock()
	list := h.bus.list(h.ev)
	for i, l := range *list {
		if l.id == h.id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

func (b *Bus) list(ev eventType) *[]listener {
	if ev == evUp {
		return &b.up
	}
	return &b.move
}

func (b *Bus) add(ev eventType, fn func(Event)) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	l := b.list(ev)
	*l = append(*l, listener{id: b.nextID, fn: fn})
	return Handle{id: b.nextID, bus: b, ev: ev}
}

// OnMove registers fn for move events.
func (b *Bus) OnMove(fn func(Event)) Handle { return b.add(evMove, fn) }

// OnUp registers fn for release events.
func (b *Bus) OnUp(fn func(Event)) Handle { return b.add(evUp, fn) }

// Move dispatches e and reports whether any listener received it.
func (b *Bus) Move(e Event) bool { return b.dispatch(evMove, e) }

// Up dispatches e and reports whether any listener received it.
func (b *Bus) Up(e Event) bool { return b.dispatch(evUp, e) }

// Listeners may remove themselves while being dispatched.
func (b *Bus) dispatch(ev eventType, e Event) bool {
	b.mu.Lock()
	src := *b.list(ev)
	fns := make([]func(Event), len(src))
	for i, l := range src {
		fns[i] = l.fn
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
	return len(fns) > 0
}

// Len is the number of registered listeners of both kinds.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.move) + len(b.up)
}
