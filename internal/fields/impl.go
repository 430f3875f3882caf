/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package fields

import "signly/internal/domain"

// Memory is a Store that owns its list.
type Memory struct {
	core
}

// NewMemory returns an empty, internally owned store.
func NewMemory() *Memory {
	m := &Memory{}
	m.init(&memoryBacking{})
	return m
}

type memoryBacking struct{ list []domain.Field }

func (b *memoryBacking) load() []domain.Field  { return b.list }
func (b *memoryBacking) save(l []domain.Field) { b.list = l }

// Bound is a Store whose list is owned by the caller. Every read goes back to
// the Binding, so changes the owner makes between calls are observed.
type Bound struct {
	core
}

// NewBound wraps an externally owned list.
func NewBound(b Binding) *Bound {
	s := &Bound{}
	s.init(bindingBacking{b})
	return s
}

type bindingBacking struct{ b Binding }

func (b bindingBacking) load() []domain.Field  { return b.b.Fields() }
func (b bindingBacking) save(l []domain.Field) { b.b.SetFields(l) }

// SliceBinding is a Binding over a plain slice variable.
type SliceBinding struct {
	Ptr *[]domain.Field
}

func (s SliceBinding) Fields() []domain.Field { return *s.Ptr }

func (s SliceBinding) SetFields(l []domain.Field) { *s.Ptr = l }

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Bound)(nil)
)
