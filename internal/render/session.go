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
	"log/slog"
	"sync"

	"signly/internal/domain"
	applog "signly/internal/log"
)

// Session is one in-flight render of a page onto a target.
type Session struct {
	Page  int
	Scale float64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	err     error
	painted bool
}

// Cancel abandons the session. A raster that arrives later is discarded.
func (s *Session) Cancel() { s.cancel() }

// Done is closed once the session has painted, failed or been discarded.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err is the outcome after Done: nil when painted, a *document.RenderError
// or a context error otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Painted reports whether the raster reached the target.
func (s *Session) Painted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.painted
}

func (s *Session) finish(err error, painted bool) {
	s.mu.Lock()
	s.err = err
	s.painted = painted
	s.mu.Unlock()
	close(s.done)
}

// RenderPage resolves the page viewport synchronously, cancels target's
// previous session and renders in the background. Render failures are logged
// and recorded on the session; the target keeps its last painted raster.
func (c *Cache) RenderPage(ctx context.Context, target Surface, page int, scale float64) (domain.Viewport, *Session, error) {
	doc := c.Document()
	if doc == nil {
		return domain.Viewport{}, nil, ErrNoDocument
	}
	p, err := doc.Page(ctx, page)
	if err != nil {
		// the previous page must not paint over the failed switch
		c.CancelTarget(target)
		return domain.Viewport{}, nil, err
	}
	vp := p.Viewport(scale)

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{Page: page, Scale: scale, ctx: sctx, cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	if prev := c.sessions[target]; prev != nil {
		prev.cancel()
	}
	c.sessions[target] = s
	c.mu.Unlock()

	c.spawn(func() { c.run(target, s) })
	return vp, s, nil
}

func (c *Cache) run(target Surface, s *Session) {
	l := applog.WithPage(applog.WithOperation(c.log, "render_page"), s.Page)
	img, err := c.Raster(s.ctx, s.Page, s.Scale, PurposeView)

	c.mu.Lock()
	current := c.sessions[target] == s && s.ctx.Err() == nil
	if current {
		delete(c.sessions, target)
	}
	switch {
	case !current:
		c.mu.Unlock()
		l.Debug("stale render discarded")
		if err == nil {
			err = context.Canceled
		}
		s.finish(err, false)
	case err != nil:
		c.mu.Unlock()
		if !errors.Is(err, context.Canceled) {
			l.Error("page render failed", slog.Float64("scale", s.Scale), slog.Any("err", err))
		}
		s.finish(err, false)
	default:
		target.Paint(img)
		c.mu.Unlock()
		s.finish(nil, true)
	}
	s.cancel()
}

// Current returns target's live session, or nil.
func (c *Cache) Current(target Surface) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[target]
}

// CancelTarget cancels target's live session, if any.
func (c *Cache) CancelTarget(target Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.sessions[target]; s != nil {
		s.cancel()
		delete(c.sessions, target)
	}
}
