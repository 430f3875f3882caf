/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package wizard is the three-step workflow around the editor. It owns the
// placed fields so they survive moving between steps.
package wizard

import (
	"sync"

	"signly/internal/domain"
	"signly/internal/fields"
	"signly/internal/telemetry"
)

type Step int

const (
	StepAddFields Step = iota
	StepPreview
	StepSend
)

// Steps lists every step in order.
var Steps = []Step{StepAddFields, StepPreview, StepSend}

func (s Step) Title() string {
	switch s {
	case StepPreview:
		return "Preview"
	case StepSend:
		return "Send & Manage"
	}
	return "Add Your Fields"
}

func (s Step) String() string { return s.Title() }

// Wizard is safe for concurrent use.
type Wizard struct {
	mu     sync.Mutex
	step   Step
	fields []domain.Field
	onStep []func(Step)
	sink   telemetry.Sink
	store  *fields.Bound
}

// New returns a wizard on the first step with no fields. sink may be nil.
func New(sink telemetry.Sink) *Wizard {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	w := &Wizard{sink: sink}
	w.store = fields.NewBound(w)
	return w
}

// Store is the field store bound to the wizard's list.
func (w *Wizard) Store() fields.Store { return w.store }

// Fields implements fields.Binding.
func (w *Wizard) Fields() []domain.Field {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fields
}

// SetFields implements fields.Binding.
func (w *Wizard) SetFields(l []domain.Field) {
	w.mu.Lock()
	w.fields = l
	w.mu.Unlock()
}

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// ReadOnly reports whether fields are locked, which is every step after the first.
func (w *Wizard) ReadOnly() bool { return w.Step() != StepAddFields }

// ShowSampleData reports whether markers show sample values.
func (w *Wizard) ShowSampleData() bool { return w.Step() == StepPreview }

// CanBack and CanNext report whether Back and Next would move.
func (w *Wizard) CanBack() bool { return w.Step() > StepAddFields }
func (w *Wizard) CanNext() bool { return w.Step() < StepSend }

// OnStep registers fn to run after every step change.
func (w *Wizard) OnStep(fn func(Step)) {
	w.mu.Lock()
	w.onStep = append(w.onStep, fn)
	w.mu.Unlock()
}

// Next advances one step, stopping at the last.
func (w *Wizard) Next() bool { return w.move(1) }

// Back returns one step, stopping at the first.
func (w *Wizard) Back() bool { return w.move(-1) }

func (w *Wizard) move(delta int) bool {
	w.mu.Lock()
	next := w.step + Step(delta)
	if next < StepAddFields || next > StepSend {
		w.mu.Unlock()
		return false
	}
	w.step = next
	w.mu.Unlock()
	w.stepped(next)
	return true
}

// Reset clears every field and returns to the first step.
func (w *Wizard) Reset() {
	w.store.Reset(nil)
	w.mu.Lock()
	w.step = StepAddFields
	w.mu.Unlock()
	w.stepped(StepAddFields)
}

func (w *Wizard) stepped(s Step) {
	w.mu.Lock()
	fns := append([]func(Step){}, w.onStep...)
	w.mu.Unlock()
	w.sink.Event(telemetry.EventStepChanged, map[string]any{"step": int(s)})
	for _, fn := range fns {
		fn(s)
	}
}
