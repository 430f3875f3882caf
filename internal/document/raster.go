/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package document

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Approximate raster: white paper, outlined rectangles, and text runs set in
// a bitmap face scaled to the run's font size.

var (
	paper     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	ink       = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	ruleColor = color.RGBA{R: 170, G: 170, B: 170, A: 255}
)

func fill(dst draw.Image, c color.Color) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// strokeRect draws a 1px outline of r clipped to dst.
func strokeRect(dst draw.Image, r image.Rectangle, c color.Color) {
	r = r.Canon()
	b := dst.Bounds()
	for x := r.Min.X; x <= r.Max.X; x++ {
		setIn(dst, b, x, r.Min.Y, c)
		setIn(dst, b, x, r.Max.Y, c)
	}
	for y := r.Min.Y; y <= r.Max.Y; y++ {
		setIn(dst, b, r.Min.X, y, c)
		setIn(dst, b, r.Max.X, y, c)
	}
}

func setIn(dst draw.Image, b image.Rectangle, x, y int, c color.Color) {
	if image.Pt(x, y).In(b) {
		dst.Set(x, y, c)
	}
}

// drawText sets s with its baseline at (x, baseline) and a cap-to-descender
// height of size pixels.
func drawText(dst draw.Image, s string, x, baseline, size float64, c color.Color) {
	if s == "" || size <= 0 {
		return
	}
	face := basicfont.Face7x13
	m := face.Metrics()
	w := font.MeasureString(face, s).Ceil()
	h := m.Height.Ceil()
	if w <= 0 || h <= 0 {
		return
	}
	glyphs := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{Dst: glyphs, Src: image.NewUniform(c), Face: face, Dot: fixed.P(0, m.Ascent.Ceil())}
	d.DrawString(s)

	k := size / float64(h)
	tw := int(math.Round(float64(w) * k))
	th := int(math.Round(float64(h) * k))
	if tw < 1 || th < 1 {
		return
	}
	top := baseline - float64(m.Ascent.Ceil())*k
	dr := image.Rect(int(math.Round(x)), int(math.Round(top)), 0, 0)
	dr.Max = dr.Min.Add(image.Pt(tw, th))
	if !dr.Overlaps(dst.Bounds()) {
		return
	}
	xdraw.ApproxBiLinear.Scale(dst, dr, glyphs, glyphs.Bounds(), xdraw.Over, nil)
}
