/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFieldJSONShape(t *testing.T) {
	f := Field{ID: "a", Page: 2, X: 0.25, Y: 0.5, Type: FieldInitials}
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"a","page":2,"x":0.25,"y":0.5,"type":"initials"}`
	if string(b) != want {
		t.Fatalf("json = %s, want %s", b, want)
	}
}

func TestFieldTypeRejectsUnknownTag(t *testing.T) {
	var f Field
	err := json.Unmarshal([]byte(`{"id":"a","page":1,"x":0,"y":0,"type":"stamp"}`), &f)
	if err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if _, err := ParseFieldType(" Date "); err != nil {
		t.Fatalf("ParseFieldType should accept case and spaces: %v", err)
	}
}

func TestEveryTypeHasADisplayRule(t *testing.T) {
	seen := map[string]bool{}
	for _, ft := range FieldTypes {
		r := ft.Rule()
		if r.Label == "" || r.Title == "" {
			t.Fatalf("%s has an empty rule: %+v", ft, r)
		}
		if seen[r.Label] {
			t.Fatalf("label %q used twice", r.Label)
		}
		seen[r.Label] = true
	}
	if FieldType("bogus").Rule() != FieldSignature.Rule() {
		t.Fatalf("unknown tag should fall back to the signature rule")
	}
}

func TestSampleValues(t *testing.T) {
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	s := DefaultSampleData
	cases := map[FieldType]string{
		FieldSignature: "John Doe",
		FieldName:      "John Doe",
		FieldInitials:  "J.D",
		FieldDate:      "07/03/2026",
	}
	for ft, want := range cases {
		if got := s.SampleValue(ft, now); got != want {
			t.Fatalf("SampleValue(%s) = %q, want %q", ft, got, want)
		}
	}
	if got := (SampleData{}).SampleValue(FieldDate, now); got != "07/03/2026" {
		t.Fatalf("empty layout should use the default, got %q", got)
	}
}

func TestViewportValid(t *testing.T) {
	if (Viewport{Width: 0, Height: 10}).Valid() {
		t.Fatalf("zero width must be invalid")
	}
	if got := (Viewport{Width: 400, Height: 800}).Scaled(0.25); got != (Viewport{Width: 100, Height: 200}) {
		t.Fatalf("Scaled = %+v", got)
	}
}
