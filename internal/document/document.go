/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package document is the boundary to the page decoder. The editor only sees
// the Decoder, Document and Page interfaces; PDFDecoder and Blank are the two
// implementations shipped with the application.
package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image/draw"

	"signly/internal/domain"
)

// Decoder turns a validated byte buffer into a Document.
type Decoder interface {
	Open(ctx context.Context, data []byte) (Document, error)
}

// Document is an opened, paginated document.
type Document interface {
	PageCount() int
	// Page returns the 1-based page index. Handles are cheap and are not
	// cached by callers beyond one render request.
	Page(ctx context.Context, index int) (Page, error)
}

// Page is one page of a Document.
type Page interface {
	Index() int
	// Viewport returns the pixel size of the page at scale (1.0 = 1 px per point).
	Viewport(scale float64) domain.Viewport
	// Render draws the page into dst, which is expected to have the size of vp.
	Render(ctx context.Context, dst draw.Image, vp domain.Viewport) error
}

// DecodeError reports input that cannot be parsed as a document.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode document: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// RenderError reports a page that failed to rasterize.
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}
func (e *RenderError) Unwrap() error { return e.Err }

// ErrUnsupportedType is returned by Sniff for anything that is not a PDF.
var ErrUnsupportedType = errors.New("unsupported document type")

// ErrPageRange is wrapped when a page index is outside 1..PageCount.
var ErrPageRange = errors.New("page index out of range")

var pdfMagic = []byte("%PDF-")

// Sniff accepts a buffer only if it starts with the PDF header, allowing for
// leading whitespace or a UTF-8 BOM some generators emit.
func Sniff(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty input", ErrUnsupportedType)
	}
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	head = bytes.TrimLeft(head, " \t\r\n")
	if !bytes.HasPrefix(head, pdfMagic) {
		return ErrUnsupportedType
	}
	return nil
}

// Fingerprint identifies document bytes for the persistent thumbnail cache.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func checkIndex(index, count int) error {
	if index < 1 || index > count {
		return fmt.Errorf("%w: %d of %d", ErrPageRange, index, count)
	}
	return nil
}
