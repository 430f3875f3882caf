//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"signly/internal/coords"
	"signly/internal/domain"
	"signly/internal/editor"
	"signly/internal/gesture"
)

// PageCanvas shows the active page raster with the field markers on top and
// feeds pointer input to the editor.
type PageCanvas struct {
	widget.BaseWidget
	ed     *editor.Editor
	raster image.Image

	pressed bool
	mouse   bool // a mouse has been seen; taps then need no synthetic press
	kind    gesture.PointerKind
	last    coords.Pt
}

func NewPageCanvas(ed *editor.Editor) *PageCanvas {
	pc := &PageCanvas{ed: ed}
	pc.ExtendBaseWidget(pc)
	return pc
}

// SetRaster replaces the page image. Call on the UI goroutine.
func (p *PageCanvas) SetRaster(img image.Image) {
	p.raster = img
	p.Refresh()
}

func (p *PageCanvas) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 60, G: 60, B: 66, A: 255})
	img := canvas.NewImageFromImage(nil)
	img.FillMode = canvas.ImageFillStretch
	img.ScaleMode = canvas.ImageScaleFastest
	r := &pageCanvasRenderer{pc: p, bg: bg, img: img}
	r.rebuild()
	return r
}

// origin is where the page's top-left corner sits inside the widget.
func (p *PageCanvas) origin() fyne.Position {
	vp := p.ed.Viewport()
	size := p.Size()
	ox := (size.Width - float32(vp.Width)) / 2
	oy := (size.Height - float32(vp.Height)) / 2
	return fyne.NewPos(max(ox, 0), max(oy, 0))
}

func (p *PageCanvas) toPage(pos fyne.Position) coords.Pt {
	o := p.origin()
	return coords.Pt{X: float64(pos.X - o.X), Y: float64(pos.Y - o.Y)}
}

func (p *PageCanvas) MouseDown(e *desktop.MouseEvent) {
	if e.Button != desktop.MouseButtonPrimary {
		return
	}
	p.mouse = true
	p.pressed = true
	p.kind = gesture.Mouse
	p.last = p.toPage(e.Position)
	p.ed.PointerDown(p.last, gesture.Mouse)
	p.Refresh()
}

func (p *PageCanvas) MouseUp(e *desktop.MouseEvent) {
	if !p.pressed {
		return
	}
	p.pressed = false
	p.ed.PointerUp(p.toPage(e.Position), p.kind)
	p.Refresh()
}

func (p *PageCanvas) Dragged(e *fyne.DragEvent) {
	pos := p.toPage(e.Position)
	if !p.pressed {
		// touch drivers deliver no press; start where the drag began
		p.pressed = true
		p.kind = gesture.Touch
		start := pos.Sub(coords.Pt{X: float64(e.Dragged.DX), Y: float64(e.Dragged.DY)})
		p.ed.PointerDown(start, gesture.Touch)
	}
	p.last = pos
	p.ed.PointerMove(pos, p.kind)
	p.Refresh()
}

func (p *PageCanvas) DragEnd() {
	if !p.pressed {
		return
	}
	p.pressed = false
	p.ed.PointerUp(p.last, p.kind)
	p.Refresh()
}

func (p *PageCanvas) Tapped(e *fyne.PointEvent) {
	pos := p.toPage(e.Position)
	if !p.mouse {
		p.ed.PointerDown(pos, gesture.Touch)
		p.ed.PointerUp(pos, gesture.Touch)
	}
	p.ed.Click(pos)
	p.Refresh()
}

type pageCanvasRenderer struct {
	pc      *PageCanvas
	bg      *canvas.Rectangle
	img     *canvas.Image
	markers []fyne.CanvasObject
	objects []fyne.CanvasObject
}

func (r *pageCanvasRenderer) Destroy()                     {}
func (r *pageCanvasRenderer) Objects() []fyne.CanvasObject { return r.objects }

func (r *pageCanvasRenderer) MinSize() fyne.Size {
	vp := r.pc.ed.Viewport()
	if !vp.Valid() {
		return fyne.NewSize(400, 300)
	}
	return fyne.NewSize(float32(vp.Width), float32(vp.Height))
}

func (r *pageCanvasRenderer) Refresh() {
	r.img.Image = r.pc.raster
	r.img.Refresh()
	r.rebuild()
	r.Layout(r.pc.Size())
	canvas.Refresh(r.pc)
}

func (r *pageCanvasRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))
	vp := r.pc.ed.Viewport()
	o := r.pc.origin()
	r.img.Move(o)
	r.img.Resize(fyne.NewSize(float32(vp.Width), float32(vp.Height)))
	r.placeMarkers(o)
}

// rebuild recreates one group of objects per marker.
func (r *pageCanvasRenderer) rebuild() {
	r.markers = r.markers[:0]
	for _, m := range r.pc.ed.Markers() {
		r.markers = append(r.markers, markerObjects(m)...)
	}
	r.objects = append([]fyne.CanvasObject{r.bg, r.img}, r.markers...)
}

func (r *pageCanvasRenderer) placeMarkers(o fyne.Position) {
	i := 0
	for _, m := range r.pc.ed.Markers() {
		n := 2
		if m.Remove.W > 0 {
			n = 4
		}
		if i+n > len(r.markers) {
			return
		}
		box, text := r.markers[i], r.markers[i+1]
		box.Move(o.Add(fyne.NewPos(float32(m.Rect.X), float32(m.Rect.Y))))
		box.Resize(fyne.NewSize(float32(m.Rect.W), float32(m.Rect.H)))
		text.Move(o.Add(fyne.NewPos(float32(m.Rect.X), float32(m.Rect.Y+m.Rect.H/2-8))))
		text.Resize(fyne.NewSize(float32(m.Rect.W), 16))
		if n == 4 {
			handle, cross := r.markers[i+2], r.markers[i+3]
			hp := o.Add(fyne.NewPos(float32(m.Remove.X), float32(m.Remove.Y)))
			hs := fyne.NewSize(float32(m.Remove.W), float32(m.Remove.H))
			handle.Move(hp)
			handle.Resize(hs)
			cross.Move(hp)
			cross.Resize(hs)
		}
		i += n
	}
}

func markerObjects(m editor.Marker) []fyne.CanvasObject {
	c := toColor(m.Color)
	box := canvas.NewRectangle(color.NRGBA{R: c.R, G: c.G, B: c.B, A: 40})
	box.StrokeColor = c
	box.StrokeWidth = 2
	if m.Dragging {
		box.StrokeWidth = 3
	}
	caption := m.Label
	if m.Value != "" {
		caption = m.Value
	}
	text := canvas.NewText(caption, c)
	text.Alignment = fyne.TextAlignCenter
	text.TextSize = 12
	text.TextStyle = fyne.TextStyle{Italic: m.Italic && m.Value != "", Bold: m.Value == ""}
	objs := []fyne.CanvasObject{box, text}
	if m.Remove.W > 0 {
		handle := canvas.NewCircle(color.NRGBA{R: 220, G: 38, B: 38, A: 255})
		cross := canvas.NewText("×", color.White)
		cross.Alignment = fyne.TextAlignCenter
		cross.TextSize = 14
		objs = append(objs, handle, cross)
	}
	return objs
}

func toColor(c domain.Color) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}
