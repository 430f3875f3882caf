/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package wizard

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"signly/internal/domain"
)

func TestStepsClampAtBothEnds(t *testing.T) {
	w := New(nil)
	if w.Back() {
		t.Fatal("Back on first step moved")
	}
	if !w.Next() || !w.Next() {
		t.Fatal("Next did not advance")
	}
	if w.Next() {
		t.Fatal("Next on last step moved")
	}
	if w.Step() != StepSend || w.Step().Title() != "Send & Manage" {
		t.Fatalf("step = %v", w.Step())
	}
}

func TestModesPerStep(t *testing.T) {
	w := New(nil)
	type mode struct{ ReadOnly, Sample bool }
	var got []mode
	record := func() { got = append(got, mode{w.ReadOnly(), w.ShowSampleData()}) }
	record()
	w.Next()
	record()
	w.Next()
	record()
	want := []mode{{false, false}, {true, true}, {true, false}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("modes (-want +got):\n%s", diff)
	}
}

func TestFieldsSurviveSteps(t *testing.T) {
	w := New(nil)
	w.Store().Add(domain.Field{Page: 1, X: 0.5, Y: 0.5, Type: domain.FieldName})
	w.Next()
	w.Back()
	if n := len(w.Fields()); n != 1 {
		t.Fatalf("fields = %d", n)
	}
}

func TestResetClearsFieldsAndStep(t *testing.T) {
	w := New(nil)
	var steps []Step
	w.OnStep(func(s Step) { steps = append(steps, s) })
	w.Store().Add(domain.Field{Page: 1, X: 0.1, Y: 0.1, Type: domain.FieldSignature})
	w.Store().Add(domain.Field{Page: 2, X: 0.2, Y: 0.2, Type: domain.FieldDate})
	w.Next()
	w.Reset()
	if len(w.Fields()) != 0 || len(w.Store().List()) != 0 {
		t.Fatalf("fields after reset = %+v", w.Fields())
	}
	if w.Step() != StepAddFields {
		t.Fatalf("step = %v", w.Step())
	}
	if diff := cmp.Diff([]Step{StepPreview, StepAddFields}, steps); diff != "" {
		t.Fatalf("step callbacks (-want +got):\n%s", diff)
	}
}
