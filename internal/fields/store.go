/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package fields holds the ordered collection of placed fields.
//
// Two implementations satisfy Store: Memory owns its list, Bound reads and
// writes a list owned by the caller through a Binding. Both return copies,
// keep insertion order and never hold two fields with the same id.
package fields

import (
	"sync"

	"github.com/google/uuid"

	"signly/internal/coords"
	"signly/internal/domain"
)

// Patch carries a new position. Only x and y of a field are mutable.
type Patch struct {
	X, Y float64
}

// Store is the field collection contract shared by both implementations.
type Store interface {
	// Add inserts f and returns the stored value. A missing or duplicate id
	// is replaced by a fresh one; coordinates are clamped to [0,1].
	Add(f domain.Field) domain.Field
	// Remove deletes the field with id. Unknown ids are ignored.
	Remove(id string)
	// Update moves the field with id. Unknown ids are ignored.
	Update(id string, p Patch)
	ListForPage(page int) []domain.Field
	List() []domain.Field
	Get(id string) (domain.Field, bool)
	// Reset replaces the whole list, e.g. when restoring an undo snapshot.
	Reset(list []domain.Field)
	// Subscribe registers fn to run after every mutation. The returned
	// function unregisters it.
	Subscribe(fn func()) (cancel func())
}

// Binding is the caller-owned side of a Bound store.
type Binding interface {
	Fields() []domain.Field
	SetFields([]domain.Field)
}

// backing abstracts where the slice lives.
type backing interface {
	load() []domain.Field
	save([]domain.Field)
}

type core struct {
	mu     sync.Mutex
	b      backing
	subs   map[int]func()
	nextID int
	newID  func() string
}

func (c *core) init(b backing) {
	c.b = b
	c.subs = map[int]func(){}
	c.newID = uuid.NewString
}

func (c *core) Add(f domain.Field) domain.Field {
	c.mu.Lock()
	list := c.b.load()
	if f.ID == "" || indexOf(list, f.ID) >= 0 {
		f.ID = c.newID()
		for indexOf(list, f.ID) >= 0 {
			f.ID = c.newID()
		}
	}
	if !f.Type.Valid() {
		f.Type = domain.DefaultFieldType
	}
	f.X, f.Y = coords.Clamp01(f.X), coords.Clamp01(f.Y)
	next := make([]domain.Field, len(list), len(list)+1)
	copy(next, list)
	c.b.save(append(next, f))
	c.mu.Unlock()
	c.notify()
	return f
}

func (c *core) Remove(id string) {
	c.mu.Lock()
	list := c.b.load()
	i := indexOf(list, id)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	next := make([]domain.Field, 0, len(list)-1)
	next = append(next, list[:i]...)
	next = append(next, list[i+1:]...)
	c.b.save(next)
	c.mu.Unlock()
	c.notify()
}

func (c *core) Update(id string, p Patch) {
	c.mu.Lock()
	list := c.b.load()
	i := indexOf(list, id)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	next := clone(list)
	next[i].X, next[i].Y = coords.Clamp01(p.X), coords.Clamp01(p.Y)
	c.b.save(next)
	c.mu.Unlock()
	c.notify()
}

func (c *core) ListForPage(page int) []domain.Field {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Field
	for _, f := range c.b.load() {
		if f.Page == page {
			out = append(out, f)
		}
	}
	return out
}

func (c *core) List() []domain.Field {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone(c.b.load())
}

func (c *core) Get(id string) (domain.Field, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.b.load()
	if i := indexOf(list, id); i >= 0 {
		return list[i], true
	}
	return domain.Field{}, false
}

// Reset drops later duplicates and clamps coordinates so the invariants
// hold for any input.
func (c *core) Reset(list []domain.Field) {
	next := make([]domain.Field, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, f := range list {
		if f.ID == "" || seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		f.X, f.Y = coords.Clamp01(f.X), coords.Clamp01(f.Y)
		next = append(next, f)
	}
	c.mu.Lock()
	c.b.save(next)
	c.mu.Unlock()
	c.notify()
}

func (c *core) Subscribe(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *core) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.subs))
	for i := 0; i < c.nextID; i++ {
		if fn, ok := c.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func indexOf(list []domain.Field, id string) int {
	for i, f := range list {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func clone(list []domain.Field) []domain.Field {
	if list == nil {
		return nil
	}
	out := make([]domain.Field, len(list))
	copy(out, list)
	return out
}
