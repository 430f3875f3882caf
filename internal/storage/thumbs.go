/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"
	"time"
)

// DefaultMaxBytes caps the thumbnail cache when no limit is configured.
const DefaultMaxBytes int64 = 64 * 1024 * 1024

// ThumbKey addresses one cached raster. Scale is stored in thousandths so
// float noise does not split entries.
type ThumbKey struct {
	Doc        string
	Page       int
	ScaleMilli int
	Purpose    string
}

// KeyFor builds a ThumbKey from a float scale.
func KeyFor(doc string, page int, scale float64, purpose string) ThumbKey {
	return ThumbKey{Doc: doc, Page: page, ScaleMilli: int(math.Round(scale * 1000)), Purpose: purpose}
}

func (k ThumbKey) valid() error {
	if strings.TrimSpace(k.Doc) == "" || k.Page < 1 || k.ScaleMilli <= 0 || k.Purpose == "" {
		return fmt.Errorf("invalid thumbnail key %+v", k)
	}
	return nil
}

// ThumbCache stores encoded rasters keyed by document fingerprint, page,
// scale and purpose, evicting least recently used rows above MaxBytes.
type ThumbCache struct {
	ix       *Index
	maxBytes int64
	now      func() time.Time
}

// NewThumbCache wraps ix. maxBytes <= 0 selects DefaultMaxBytes.
func NewThumbCache(ix *Index, maxBytes int64) *ThumbCache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &ThumbCache{ix: ix, maxBytes: maxBytes, now: time.Now}
}

// Get returns the blob for k and marks it as recently used.
func (c *ThumbCache) Get(ctx context.Context, k ThumbKey) ([]byte, bool, error) {
	if err := k.valid(); err != nil {
		return nil, false, err
	}
	var blob []byte
	err := c.ix.db.QueryRowContext(ctx, `SELECT blob FROM thumbs WHERE doc=? AND page=? AND scale_milli=? AND purpose=?`,
		k.Doc, k.Page, k.ScaleMilli, k.Purpose).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query thumb: %w", err)
	}
	// touch
	_, _ = c.ix.db.ExecContext(ctx, `UPDATE thumbs SET last_access=? WHERE doc=? AND page=? AND scale_milli=? AND purpose=?`,
		c.now().UnixNano(), k.Doc, k.Page, k.ScaleMilli, k.Purpose)
	return blob, true, nil
}

// Put upserts blob for k and enforces the size cap.
func (c *ThumbCache) Put(ctx context.Context, k ThumbKey, w, h int, blob []byte) error {
	if err := k.valid(); err != nil {
		return err
	}
	if len(blob) == 0 {
		return errors.New("empty thumbnail blob")
	}
	now := c.now()
	_, err := c.ix.db.ExecContext(ctx, `INSERT INTO thumbs(doc,page,scale_milli,purpose,blob,size,w,h,updated_at,last_access)
		VALUES(?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(doc,page,scale_milli,purpose) DO UPDATE SET blob=excluded.blob, size=excluded.size, w=excluded.w, h=excluded.h, updated_at=excluded.updated_at, last_access=excluded.last_access`,
		k.Doc, k.Page, k.ScaleMilli, k.Purpose, blob, len(blob), w, h, now.UTC().Format(time.RFC3339), now.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert thumb: %w", err)
	}
	return c.EvictToFit(ctx, c.maxBytes)
}

// GetOrCreate returns the cached blob or generates, stores and returns it.
func (c *ThumbCache) GetOrCreate(ctx context.Context, k ThumbKey, gen func(context.Context) (blob []byte, w, h int, err error)) ([]byte, error) {
	if b, ok, err := c.Get(ctx, k); err != nil {
		return nil, err
	} else if ok {
		return b, nil
	}
	if gen == nil {
		return nil, nil
	}
	data, w, h, err := gen(ctx)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	if err := c.Put(ctx, k, w, h, data); err != nil {
		return nil, err
	}
	return data, nil
}

// EvictToFit deletes least recently used rows until the total size is at
// most capBytes.
func (c *ThumbCache) EvictToFit(ctx context.Context, capBytes int64) error {
	db := c.ix.db
	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM thumbs`).Scan(&total); err != nil {
		return fmt.Errorf("sum thumbs size: %w", err)
	}
	if total <= capBytes {
		return nil
	}
	rows, err := db.QueryContext(ctx, `SELECT id, size FROM thumbs ORDER BY last_access ASC, id ASC`)
	if err != nil {
		return fmt.Errorf("select victims: %w", err)
	}
	toDelete := make([]any, 0, 32)
	cur := total
	for rows.Next() {
		var id, sz int64
		if err := rows.Scan(&id, &sz); err != nil {
			_ = rows.Close()
			return err
		}
		toDelete = append(toDelete, id)
		cur -= sz
		if cur <= capBytes {
			break
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// the single connection must be free before writing
	if err := rows.Close(); err != nil {
		return err
	}
	if len(toDelete) == 0 {
		return nil
	}
	q := `DELETE FROM thumbs WHERE id IN (?` + strings.Repeat(",?", len(toDelete)-1) + `)`
	if _, err := db.ExecContext(ctx, q, toDelete...); err != nil {
		return fmt.Errorf("evict delete: %w", err)
	}
	return nil
}

// TotalBytes returns the bytes tracked by thumbs.size.
func (c *ThumbCache) TotalBytes(ctx context.Context) (int64, error) {
	var total int64
	if err := c.ix.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM thumbs`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum thumbs size: %w", err)
	}
	return total, nil
}

// Forget drops every raster of doc.
func (c *ThumbCache) Forget(ctx context.Context, doc string) error {
	if _, err := c.ix.db.ExecContext(ctx, `DELETE FROM thumbs WHERE doc=?`, doc); err != nil {
		return fmt.Errorf("forget %s: %w", doc, err)
	}
	return nil
}

// GetOrCreateThumb is GetOrCreate for images, PNG-encoded on the way in. It
// satisfies render.ThumbStore: when create succeeds but the write fails, the
// created image is returned together with the error. Rows that no longer
// decode are dropped so the next call replaces them.
func (c *ThumbCache) GetOrCreateThumb(ctx context.Context, doc string, page int, scale float64, purpose string, create func() (image.Image, error)) (image.Image, error) {
	k := KeyFor(doc, page, scale, purpose)
	var made image.Image
	blob, err := c.GetOrCreate(ctx, k, func(context.Context) ([]byte, int, int, error) {
		img, err := create()
		if err != nil {
			return nil, 0, 0, err
		}
		made = img
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, 0, 0, fmt.Errorf("encode thumb: %w", err)
		}
		b := img.Bounds()
		return buf.Bytes(), b.Dx(), b.Dy(), nil
	})
	if made != nil {
		return made, err
	}
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(blob))
	if err != nil {
		_, _ = c.ix.db.ExecContext(ctx, `DELETE FROM thumbs WHERE doc=? AND page=? AND scale_milli=? AND purpose=?`,
			k.Doc, k.Page, k.ScaleMilli, k.Purpose)
		return nil, fmt.Errorf("decode thumb: %w", err)
	}
	return img, nil
}

// OpenThumbs opens (or rebuilds) the index in dir and returns a cache over it.
// Close releases the index.
func OpenThumbs(ctx context.Context, dir string, maxBytes int64) (*ThumbCache, error) {
	ix, _, err := OpenOrRebuild(ctx, dir)
	if err != nil {
		return nil, err
	}
	return NewThumbCache(ix, maxBytes), nil
}

// Close closes the underlying index.
func (c *ThumbCache) Close() error { return c.ix.Close() }
