/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package render

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"

	applog "signly/internal/log"
)

// ThumbnailJob renders every page of one document in order.
type ThumbnailJob struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	results []image.Image
}

// Cancel stops the job; pages not yet delivered never will be.
func (j *ThumbnailJob) Cancel() { j.cancel() }

func (j *ThumbnailJob) Done() <-chan struct{} { return j.done }

// Wait blocks until the job ends and returns one slot per page. Slots of
// failed or undelivered pages are nil.
func (j *ThumbnailJob) Wait() []image.Image {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]image.Image, len(j.results))
	copy(out, j.results)
	return out
}

// RenderThumbnails starts a job rendering all pages at scale, one after the
// other, replacing any previous job. onReady runs for each delivered page
// with the cache lock held; a job superseded by Cancel, a newer job or a new
// document delivers nothing further.
func (c *Cache) RenderThumbnails(ctx context.Context, scale float64, onReady func(page int, img image.Image)) *ThumbnailJob {
	jctx, cancel := context.WithCancel(ctx)
	j := &ThumbnailJob{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if c.thumbs != nil {
		c.thumbs.cancel()
	}
	c.thumbs = j
	doc, gen := c.doc, c.gen
	c.mu.Unlock()

	if doc == nil {
		cancel()
		close(j.done)
		return j
	}
	j.results = make([]image.Image, doc.PageCount())
	c.spawn(func() { c.runThumbnails(jctx, j, gen, scale, onReady) })
	return j
}

func (c *Cache) runThumbnails(ctx context.Context, j *ThumbnailJob, gen uint64, scale float64, onReady func(int, image.Image)) {
	defer close(j.done)
	defer j.cancel()
	l := applog.WithOperation(c.log, "thumbnails")
	for i := range j.results {
		page := i + 1
		if ctx.Err() != nil {
			return
		}
		img, err := c.Raster(ctx, page, scale, PurposeThumbnail)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			l.Warn("thumbnail failed", slog.Int("page", page), slog.Any("err", err))
			continue
		}
		c.mu.Lock()
		if c.thumbs != j || c.gen != gen || ctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		j.mu.Lock()
		j.results[i] = img
		j.mu.Unlock()
		if onReady != nil {
			onReady(page, img)
		}
		c.mu.Unlock()
	}
	c.mu.Lock()
	if c.thumbs == j {
		c.thumbs = nil
	}
	c.mu.Unlock()
}
