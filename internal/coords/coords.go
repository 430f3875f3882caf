/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package coords converts between pixel positions on a rendered page and the
// resolution-independent fractions stored on fields.
package coords

import (
	"math"

	"signly/internal/domain"
)

// Pt is a 2D point in viewport pixels.
type Pt struct{ X, Y float64 }

// Rect is an axis-aligned rectangle defined by its top-left corner and size.
type Rect struct {
	X, Y float64
	W, H float64
}

func (r Rect) Min() Pt { return Pt{r.X, r.Y} }
func (r Rect) Max() Pt { return Pt{r.X + r.W, r.Y + r.H} }

// Center returns the midpoint of r.
func (r Rect) Center() Pt { return Pt{r.X + r.W/2, r.Y + r.H/2} }

func (r Rect) Contains(p Pt) bool {
	return p.X >= r.X && p.Y >= r.Y && p.X <= r.X+r.W && p.Y <= r.Y+r.H
}

// Sub returns p-q.
func (p Pt) Sub(q Pt) Pt { return Pt{p.X - q.X, p.Y - q.Y} }

// Add returns p+q.
func (p Pt) Add(q Pt) Pt { return Pt{p.X + q.X, p.Y + q.Y} }

// RemoveHandleSize is the edge length of the remove affordance.
const RemoveHandleSize = 20.0

// removeHandleInset is how far the handle sticks out past the marker's top-right corner.
const removeHandleInset = 10.0

// Clamp01 limits v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ToNormalized divides a pixel position by the viewport and clamps both axes.
// A viewport without positive dimensions yields (0,0).
func ToNormalized(px, py float64, vp domain.Viewport) (x, y float64) {
	if !vp.Valid() {
		return 0, 0
	}
	return Clamp01(px / vp.Width), Clamp01(py / vp.Height)
}

// ToPixels is the inverse of ToNormalized. It is used for drawing only.
func ToPixels(x, y float64, vp domain.Viewport) (px, py float64) {
	return x * vp.Width, y * vp.Height
}

// MarkerCenter returns the marker centre for a pointer that grabbed the
// marker at grab (relative to its top-left corner).
func MarkerCenter(pointer, grab Pt, markerSize float64) Pt {
	return Pt{
		X: pointer.X - grab.X + markerSize/2,
		Y: pointer.Y - grab.Y + markerSize/2,
	}
}

// MarkerRect is the on-screen box of a marker whose centre sits at the
// normalized position (x,y).
func MarkerRect(x, y float64, vp domain.Viewport, markerSize float64) Rect {
	cx, cy := ToPixels(x, y, vp)
	return Rect{X: cx - markerSize/2, Y: cy - markerSize/2, W: markerSize, H: markerSize}
}

// RemoveHandleRect places the remove affordance over the top-right corner of marker.
func RemoveHandleRect(marker Rect) Rect {
	return Rect{
		X: marker.X + marker.W - removeHandleInset,
		Y: marker.Y - removeHandleInset,
		W: RemoveHandleSize,
		H: RemoveHandleSize,
	}
}
