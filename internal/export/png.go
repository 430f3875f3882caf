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
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// PagePNGPath names the PNG of page (1-based) inside dir.
func PagePNGPath(dir string, page int) string {
	return filepath.Join(dir, fmt.Sprintf("page-%03d.png", page))
}

// WritePNG encodes img to path, creating parent directories.
func WritePNG(path string, img image.Image) error {
	if img == nil {
		return fmt.Errorf("write %s: nil image", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}

// WritePagePNGs writes one file per non-nil image; images[i] is page i+1.
// It returns the number of files written.
func WritePagePNGs(dir string, images []image.Image) (int, error) {
	n := 0
	for i, img := range images {
		if img == nil {
			continue
		}
		if err := WritePNG(PagePNGPath(dir, i+1), img); err != nil {
			return n, fmt.Errorf("page %d: %w", i+1, err)
		}
		n++
	}
	return n, nil
}
