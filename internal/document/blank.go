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
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"

	"signly/internal/domain"
)

// A4 in points.
var A4 = domain.Viewport{Width: 595, Height: 842}

// Blank returns an in-memory document with one page per size (in points).
// With no sizes it has a single A4 page.
func Blank(sizes ...domain.Viewport) Document {
	if len(sizes) == 0 {
		sizes = []domain.Viewport{A4}
	}
	cp := make([]domain.Viewport, len(sizes))
	copy(cp, sizes)
	return &blankDocument{sizes: cp}
}

type blankDocument struct {
	sizes []domain.Viewport
}

func (d *blankDocument) PageCount() int { return len(d.sizes) }

func (d *blankDocument) Page(ctx context.Context, index int) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkIndex(index, len(d.sizes)); err != nil {
		return nil, err
	}
	return &blankPage{index: index, size: d.sizes[index-1]}, nil
}

type blankPage struct {
	index int
	size  domain.Viewport
}

func (p *blankPage) Index() int { return p.index }

func (p *blankPage) Viewport(scale float64) domain.Viewport { return p.size.Scaled(scale) }

func (p *blankPage) Render(ctx context.Context, dst draw.Image, vp domain.Viewport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !vp.Valid() || !p.size.Valid() {
		return &RenderError{Page: p.index, Err: errors.New("invalid viewport")}
	}
	fill(dst, paper)
	b := dst.Bounds()
	strokeRect(dst, image.Rect(b.Min.X, b.Min.Y, b.Max.X-1, b.Max.Y-1), ruleColor)
	k := vp.Height / p.size.Height
	drawText(dst, fmt.Sprintf("Page %d", p.index), float64(b.Min.X)+36*k, float64(b.Min.Y)+60*k, 24*k, ink)
	return nil
}
