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
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"

	"rsc.io/pdf"

	"signly/internal/domain"
)

// PDFDecoder opens PDF files with rsc.io/pdf.
type PDFDecoder struct{}

// Open parses data. Malformed input yields a *DecodeError.
func (PDFDecoder) Open(ctx context.Context, data []byte) (doc Document, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := Sniff(data); err != nil {
		return nil, &DecodeError{Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, &DecodeError{Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()
	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	n := rd.NumPage()
	if n < 1 {
		return nil, &DecodeError{Err: errors.New("document has no pages")}
	}
	return &pdfDocument{r: rd, pages: n}, nil
}

type pdfDocument struct {
	// rsc.io/pdf readers are not documented as goroutine-safe.
	mu    sync.Mutex
	r     *pdf.Reader
	pages int
}

func (d *pdfDocument) PageCount() int { return d.pages }

func (d *pdfDocument) Page(ctx context.Context, index int) (p Page, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkIndex(index, d.pages); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, &RenderError{Page: index, Err: fmt.Errorf("page tree: %v", r)}
		}
	}()
	pg := d.r.Page(index)
	if pg.V.IsNull() {
		return nil, &RenderError{Page: index, Err: errors.New("missing page object")}
	}
	box, err := mediaBox(pg.V)
	if err != nil {
		return nil, &RenderError{Page: index, Err: err}
	}
	return &pdfPage{doc: d, pg: pg, index: index, box: box}, nil
}

// pageBox is a MediaBox in PDF user space (origin bottom-left).
type pageBox struct{ llx, lly, urx, ury float64 }

func (b pageBox) width() float64  { return math.Abs(b.urx - b.llx) }
func (b pageBox) height() float64 { return math.Abs(b.ury - b.lly) }

// maxPageUnits is the largest page side PDF readers accept (200 inches).
const maxPageUnits = 14400

func (b pageBox) check() error {
	w, h := b.width(), b.height()
	switch {
	case math.IsNaN(w) || math.IsNaN(h) || w == 0 || h == 0:
		return errors.New("empty MediaBox")
	case w > maxPageUnits || h > maxPageUnits:
		return fmt.Errorf("MediaBox %gx%g exceeds %d units", w, h, maxPageUnits)
	}
	return nil
}

// letter is used when no MediaBox is found anywhere in the page tree.
var letter = pageBox{0, 0, 612, 792}

// mediaBox walks up the Parent chain; MediaBox is an inheritable attribute.
func mediaBox(v pdf.Value) (pageBox, error) {
	for depth := 0; depth < 64 && !v.IsNull(); depth++ {
		mb := v.Key("MediaBox")
		if mb.Kind() == pdf.Array {
			if mb.Len() != 4 {
				return pageBox{}, fmt.Errorf("malformed MediaBox with %d entries", mb.Len())
			}
			b := pageBox{mb.Index(0).Float64(), mb.Index(1).Float64(), mb.Index(2).Float64(), mb.Index(3).Float64()}
			if err := b.check(); err != nil {
				return pageBox{}, err
			}
			return b, nil
		}
		v = v.Key("Parent")
	}
	return letter, nil
}

type pdfPage struct {
	doc   *pdfDocument
	pg    pdf.Page
	index int
	box   pageBox
}

func (p *pdfPage) Index() int { return p.index }

func (p *pdfPage) Viewport(scale float64) domain.Viewport {
	return domain.Viewport{Width: p.box.width() * scale, Height: p.box.height() * scale}
}

func (p *pdfPage) Render(ctx context.Context, dst draw.Image, vp domain.Viewport) (err error) {
	if !vp.Valid() {
		return &RenderError{Page: p.index, Err: errors.New("invalid viewport")}
	}
	content, err := p.content()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sx := vp.Width / p.box.width()
	sy := vp.Height / p.box.height()
	origin := dst.Bounds().Min
	toDst := func(x, y float64) (float64, float64) {
		return float64(origin.X) + (x-p.box.llx)*sx, float64(origin.Y) + (p.box.ury-y)*sy
	}

	fill(dst, paper)
	for i, r := range content.Rect {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		x0, y0 := toDst(r.Min.X, r.Min.Y)
		x1, y1 := toDst(r.Max.X, r.Max.Y)
		strokeRect(dst, image.Rect(int(x0), int(y0), int(x1), int(y1)), ruleColor)
	}
	for i, t := range content.Text {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		x, y := toDst(t.X, t.Y)
		drawText(dst, t.S, x, y, t.FontSize*sy, ink)
	}
	return nil
}

func (p *pdfPage) content() (c pdf.Content, err error) {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = &RenderError{Page: p.index, Err: fmt.Errorf("content stream: %v", r)}
		}
	}()
	return p.pg.Content(), nil
}
