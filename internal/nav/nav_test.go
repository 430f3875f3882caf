/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package nav

import (
	"image"
	"testing"
)

func TestStartsOnFirstPage(t *testing.T) {
	n := New(3)
	if n.Active() != 1 || n.PageCount() != 3 {
		t.Fatalf("active=%d count=%d", n.Active(), n.PageCount())
	}
}

func TestSelectPageIgnoresOutOfRange(t *testing.T) {
	n := New(3)
	var changes []int
	n.OnChange(func(p int) { changes = append(changes, p) })
	for _, p := range []int{0, -1, 4, 1} {
		if n.SelectPage(p) {
			t.Fatalf("SelectPage(%d) reported a change", p)
		}
	}
	if !n.SelectPage(2) || n.Active() != 2 {
		t.Fatalf("SelectPage(2) failed, active=%d", n.Active())
	}
	n.Next()
	n.Next()
	n.Prev()
	if n.Active() != 2 {
		t.Fatalf("active=%d, want 2", n.Active())
	}
	want := []int{2, 3, 2}
	if len(changes) != len(want) {
		t.Fatalf("changes=%v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("changes=%v, want %v", changes, want)
		}
	}
}

func TestThumbsFallBackToPlaceholder(t *testing.T) {
	n := New(3)
	n.SelectPage(3)
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	th := n.Thumbs([]image.Image{img, nil})
	if len(th) != 3 {
		t.Fatalf("len=%d", len(th))
	}
	if th[0].Image == nil || th[1].Image != nil || th[2].Image != nil {
		t.Fatalf("unexpected images %+v", th)
	}
	if th[0].Active || !th[2].Active || th[2].Page != 3 {
		t.Fatalf("active flag wrong %+v", th)
	}
}

func TestResetReturnsToFirstPage(t *testing.T) {
	n := New(5)
	n.SelectPage(4)
	n.Reset(2)
	if n.Active() != 1 || n.PageCount() != 2 {
		t.Fatalf("after Reset active=%d count=%d", n.Active(), n.PageCount())
	}
}
