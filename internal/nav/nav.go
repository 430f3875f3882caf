/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package nav tracks the active page of the loaded document.
package nav

import (
	"image"
	"sync"
)

// Navigator holds the 1-based active page. Selections outside 1..PageCount
// are ignored.
type Navigator struct {
	mu       sync.Mutex
	active   int
	count    int
	onChange func(page int)
}

// New returns a navigator over count pages with page 1 active.
func New(count int) *Navigator {
	return &Navigator{active: 1, count: count}
}

// Reset points the navigator at a new document and activates page 1.
// OnChange is not called.
func (n *Navigator) Reset(count int) {
	n.mu.Lock()
	n.active, n.count = 1, count
	n.mu.Unlock()
}

// OnChange sets the callback run after the active page changes.
func (n *Navigator) OnChange(fn func(page int)) {
	n.mu.Lock()
	n.onChange = fn
	n.mu.Unlock()
}

func (n *Navigator) Active() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

func (n *Navigator) PageCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

// SelectPage activates p and reports whether the active page changed.
func (n *Navigator) SelectPage(p int) bool {
	n.mu.Lock()
	if p < 1 || p > n.count || p == n.active {
		n.mu.Unlock()
		return false
	}
	n.active = p
	fn := n.onChange
	n.mu.Unlock()
	if fn != nil {
		fn(p)
	}
	return true
}

// Next and Prev step through pages, stopping at either end.
func (n *Navigator) Next() bool { return n.SelectPage(n.Active() + 1) }
func (n *Navigator) Prev() bool { return n.SelectPage(n.Active() - 1) }

// Thumb is one sidebar entry. Image is nil until the thumbnail is ready;
// the sidebar then shows the page number instead.
type Thumb struct {
	Page   int
	Image  image.Image
	Active bool
}

// Thumbs builds one entry per page from images indexed by page-1.
func (n *Navigator) Thumbs(images []image.Image) []Thumb {
	n.mu.Lock()
	count, active := n.count, n.active
	n.mu.Unlock()
	out := make([]Thumb, count)
	for i := range out {
		out[i] = Thumb{Page: i + 1, Active: i+1 == active}
		if i < len(images) {
			out[i].Image = images[i]
		}
	}
	return out
}
