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

// This file defines the data model shared by the placement engine, the
// renderer boundary and the export stage.

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FieldType is the tag of a placed field. The set is closed; see Rule.
type FieldType string

const (
	FieldSignature FieldType = "signature"
	FieldName      FieldType = "name"
	FieldDate      FieldType = "date"
	FieldInitials  FieldType = "initials"
)

// DefaultFieldType is selected when the user has not picked a type yet.
const DefaultFieldType = FieldSignature

// FieldTypes lists every tag in selector order.
var FieldTypes = []FieldType{FieldSignature, FieldName, FieldDate, FieldInitials}

// ParseFieldType accepts the canonical lower-case names, case-insensitively.
func ParseFieldType(s string) (FieldType, error) {
	t := FieldType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown field type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the four known tags.
func (t FieldType) Valid() bool {
	switch t {
	case FieldSignature, FieldName, FieldDate, FieldInitials:
		return true
	}
	return false
}

func (t FieldType) String() string { return string(t) }

func (t *FieldType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseFieldType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Color is an 8-bit RGBA color.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// DisplayRule says how a field of a given type is drawn.
type DisplayRule struct {
	Label  string // short marker caption
	Title  string // selector button text
	Color  Color
	Italic bool // sample value rendered in a handwriting style
}

var rules = map[FieldType]DisplayRule{
	FieldSignature: {Label: "Sign", Title: "Signature", Color: Color{R: 37, G: 99, B: 235, A: 255}, Italic: true},
	FieldName:      {Label: "Name", Title: "Full Name", Color: Color{R: 22, G: 163, B: 74, A: 255}},
	FieldDate:      {Label: "Date", Title: "Signing Date", Color: Color{R: 147, G: 51, B: 234, A: 255}},
	FieldInitials:  {Label: "Init", Title: "Initials", Color: Color{R: 219, G: 39, B: 119, A: 255}},
}

// Rule returns the display rule for t. Unknown tags fall back to the signature rule.
func (t FieldType) Rule() DisplayRule {
	if r, ok := rules[t]; ok {
		return r
	}
	return rules[DefaultFieldType]
}

// Field is a typed marker on one page. X and Y are fractions of the rendered
// page viewport in [0,1] and locate the marker centre.
type Field struct {
	ID   string    `json:"id"`
	Page int       `json:"page"` // 1-based
	X    float64   `json:"x"`
	Y    float64   `json:"y"`
	Type FieldType `json:"type"`
}

// Viewport is the pixel size of a page rendered at a given scale.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (v Viewport) Valid() bool { return v.Width > 0 && v.Height > 0 }

// Scaled returns the viewport multiplied by s.
func (v Viewport) Scaled(s float64) Viewport {
	return Viewport{Width: v.Width * s, Height: v.Height * s}
}

// SampleData holds the placeholder values used by the preview step.
type SampleData struct {
	Name       string
	Initials   string
	DateLayout string
}

// DefaultSampleData mirrors the placeholder person shown in previews.
var DefaultSampleData = SampleData{Name: "John Doe", Initials: "J.D", DateLayout: "02/01/2006"}

// SampleValue returns the preview text for a field of type t.
func (s SampleData) SampleValue(t FieldType, now time.Time) string {
	switch t {
	case FieldSignature, FieldName:
		return s.Name
	case FieldInitials:
		return s.Initials
	case FieldDate:
		layout := s.DateLayout
		if layout == "" {
			layout = DefaultSampleData.DateLayout
		}
		return now.Format(layout)
	}
	return ""
}
