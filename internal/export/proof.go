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
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/jung-kurt/gofpdf"

	"signly/internal/document"
	"signly/internal/domain"
	applog "signly/internal/log"
)

// ProofOptions controls the preview PDF.
// Units are points; a page is laid out at scale 1 so normalized field
// positions map straight onto the page box.
type ProofOptions struct {
	Sample domain.SampleData
	// Now dates the date fields; zero means time.Now().
	Now time.Time
	// MarkerSize is the marker edge in points.
	MarkerSize float64
	// RasterScale is the resolution of the embedded page image relative to
	// the page box. Values below 1 are raised to 1.
	RasterScale float64
	// Labels draws the field type caption above each marker.
	Labels bool
	Title  string
}

// ProofPDF writes a preview of doc with every field drawn where it will
// appear, filled with sample values. Fields on pages the document does not
// have are skipped and counted.
func ProofPDF(ctx context.Context, doc document.Document, list []domain.Field, w io.Writer, opt ProofOptions) (skipped int, err error) {
	if doc == nil || doc.PageCount() == 0 {
		return 0, fmt.Errorf("proof: empty document")
	}
	if opt.MarkerSize <= 0 {
		opt.MarkerSize = 64
	}
	if opt.RasterScale < 1 {
		opt.RasterScale = 1
	}
	if opt.Sample == (domain.SampleData{}) {
		opt.Sample = domain.DefaultSampleData
	}
	if opt.Now.IsZero() {
		opt.Now = time.Now()
	}
	l := applog.WithOperation(applog.WithComponent("export"), "proof")

	byPage := map[int][]domain.Field{}
	for _, f := range list {
		if f.Page < 1 || f.Page > doc.PageCount() {
			skipped++
			continue
		}
		byPage[f.Page] = append(byPage[f.Page], f)
	}

	first, err := doc.Page(ctx, 1)
	if err != nil {
		return 0, err
	}
	vp := first.Viewport(1)
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: vp.Width, Ht: vp.Height},
	})
	if opt.Title != "" {
		pdf.SetTitle(opt.Title, true)
	}
	pdf.SetCreator("Signly", false)
	pdf.SetAutoPageBreak(false, 0)

	for i := 1; i <= doc.PageCount(); i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		pg, err := doc.Page(ctx, i)
		if err != nil {
			return 0, err
		}
		size := pg.Viewport(1)
		pdf.AddPageFormat("", gofpdf.SizeType{Wd: size.Width, Ht: size.Height})

		if err := placePageImage(ctx, pdf, pg, size, opt.RasterScale); err != nil {
			// the markers still go on a blank page
			l.Warn("page image skipped", slog.Int("page", i), slog.Any("err", err))
		}
		for _, f := range byPage[i] {
			drawMarker(pdf, f, size, opt)
		}
	}
	if skipped > 0 {
		l.Warn("fields outside the document skipped", slog.Int("count", skipped))
	}
	if err := pdf.Output(w); err != nil {
		return skipped, fmt.Errorf("write pdf: %w", err)
	}
	return skipped, nil
}

func placePageImage(ctx context.Context, pdf *gofpdf.Fpdf, pg document.Page, size domain.Viewport, scale float64) error {
	vp := pg.Viewport(scale)
	img := image.NewRGBA(image.Rect(0, 0, int(math.Ceil(vp.Width)), int(math.Ceil(vp.Height))))
	if err := pg.Render(ctx, img, vp); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode page: %w", err)
	}
	name := fmt.Sprintf("page-%d", pg.Index())
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, &buf)
	if err := pdf.Error(); err != nil {
		pdf.ClearError()
		return err
	}
	pdf.ImageOptions(name, 0, 0, size.Width, size.Height, false, opts, 0, "")
	return nil
}

func drawMarker(pdf *gofpdf.Fpdf, f domain.Field, size domain.Viewport, opt ProofOptions) {
	rule := f.Type.Rule()
	s := opt.MarkerSize
	x := f.X*size.Width - s/2
	y := f.Y*size.Height - s/2

	setFillColor(pdf, tint(rule.Color))
	setDrawColor(pdf, rule.Color)
	pdf.SetLineWidth(1)
	pdf.SetDashPattern([]float64{3, 2}, 0)
	pdf.Rect(x, y, s, s, "FD")
	pdf.SetDashPattern([]float64{}, 0)

	style := ""
	if rule.Italic {
		style = "I"
	}
	value := opt.Sample.SampleValue(f.Type, opt.Now)
	fontSize := 10.0
	pdf.SetFont("Helvetica", style, fontSize)
	// shrink long values into the box
	for fontSize > 5 && pdf.GetStringWidth(value) > s-4 {
		fontSize--
		pdf.SetFont("Helvetica", style, fontSize)
	}
	pdf.SetTextColor(int(rule.Color.R), int(rule.Color.G), int(rule.Color.B))
	pdf.Text(x+(s-pdf.GetStringWidth(value))/2, y+s/2+fontSize/3, value)

	if opt.Labels {
		pdf.SetFont("Helvetica", "B", 7)
		pdf.Text(x, y-2, rule.Label)
	}
	pdf.SetTextColor(0, 0, 0)
}

func setDrawColor(pdf *gofpdf.Fpdf, c domain.Color) {
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
}

func setFillColor(pdf *gofpdf.Fpdf, c domain.Color) {
	pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}

// tint mixes c with white for the marker background.
func tint(c domain.Color) domain.Color {
	mix := func(v uint8) uint8 { return uint8(255 - (255-int(v))/8) }
	return domain.Color{R: mix(c.R), G: mix(c.G), B: mix(c.B), A: 255}
}
