/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"signly/internal/domain"
)

// PageSize presets in points.
var (
	PageA4     = domain.Viewport{Width: 595, Height: 842}
	PageLetter = domain.Viewport{Width: 612, Height: 792}
	PageLegal  = domain.Viewport{Width: 612, Height: 1008}
)

var presets = map[string]domain.Viewport{
	"a4":     PageA4,
	"letter": PageLetter,
	"legal":  PageLegal,
}

// ParsePageSize accepts a preset name (a4, letter, legal) or WIDTHxHEIGHT in
// points. A trailing "-landscape" swaps the sides of a preset.
func ParsePageSize(s string) (domain.Viewport, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	name, landscape := strings.CutSuffix(s, "-landscape")
	if vp, ok := presets[name]; ok {
		if landscape {
			vp.Width, vp.Height = vp.Height, vp.Width
		}
		return vp, nil
	}
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return domain.Viewport{}, fmt.Errorf("unknown page size %q", s)
	}
	wv, err1 := strconv.ParseFloat(w, 64)
	hv, err2 := strconv.ParseFloat(h, 64)
	vp := domain.Viewport{Width: wv, Height: hv}
	if err1 != nil || err2 != nil || !vp.Valid() {
		return domain.Viewport{}, fmt.Errorf("invalid page size %q", s)
	}
	return vp, nil
}

// SampleDocument writes a PDF with one page per size, each carrying a
// heading, filler lines and a signature line. With no sizes it writes a
// single A4 page.
func SampleDocument(w io.Writer, sizes ...domain.Viewport) error {
	if len(sizes) == 0 {
		sizes = []domain.Viewport{PageA4}
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: sizes[0].Width, Ht: sizes[0].Height},
	})
	pdf.SetTitle("Sample agreement", false)
	pdf.SetCreator("Signly", false)
	pdf.SetAutoPageBreak(false, 0)

	for i, sz := range sizes {
		if !sz.Valid() {
			return fmt.Errorf("page %d: invalid size %vx%v", i+1, sz.Width, sz.Height)
		}
		pdf.AddPageFormat("", gofpdf.SizeType{Wd: sz.Width, Ht: sz.Height})
		margin := sz.Width / 10

		pdf.SetFont("Helvetica", "B", 18)
		pdf.Text(margin, margin+18, "Sample agreement")
		pdf.SetFont("Helvetica", "", 10)
		pdf.Text(sz.Width-margin-60, margin+18, fmt.Sprintf("Page %d of %d", i+1, len(sizes)))

		pdf.SetDrawColor(200, 200, 200)
		pdf.SetLineWidth(0.5)
		for y := margin + 50; y < sz.Height-margin-80; y += 16 {
			pdf.Line(margin, y, sz.Width-margin, y)
		}

		pdf.SetDrawColor(0, 0, 0)
		pdf.SetLineWidth(1)
		sy := sz.Height - margin - 30
		pdf.Line(margin, sy, margin+sz.Width/3, sy)
		pdf.Text(margin, sy+12, "Signature")
		pdf.Line(sz.Width-margin-sz.Width/4, sy, sz.Width-margin, sy)
		pdf.Text(sz.Width-margin-sz.Width/4, sy+12, "Date")
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write sample pdf: %w", err)
	}
	return nil
}
