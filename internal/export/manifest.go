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
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"signly/internal/domain"
)

//go:embed manifest.schema.json
var manifestSchema []byte

// ManifestVersion is written into every manifest.
const ManifestVersion = 1

// Manifest hands the placed fields to the sending stage.
type Manifest struct {
	Version   int            `json:"version"`
	Document  string         `json:"document,omitempty"` // content fingerprint
	Name      string         `json:"name,omitempty"`
	Pages     int            `json:"pages,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Fields    []domain.Field `json:"fields"`
}

// NewManifest wraps list. A nil list becomes an empty one.
func NewManifest(list []domain.Field, fingerprint, name string, pages int, now time.Time) Manifest {
	if list == nil {
		list = []domain.Field{}
	}
	return Manifest{
		Version:   ManifestVersion,
		Document:  fingerprint,
		Name:      name,
		Pages:     pages,
		CreatedAt: now.UTC(),
		Fields:    list,
	}
}

// ValidationError lists every schema or consistency problem found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid manifest: " + strings.Join(e.Problems, "; ")
}

// ValidateManifest checks data against the manifest schema. Both a manifest
// object and a bare field array are accepted.
func ValidateManifest(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(manifestSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("schema validate: %w", err)
	}
	if result.Valid() {
		return nil
	}
	ve := &ValidationError{}
	for _, e := range result.Errors() {
		ve.Problems = append(ve.Problems, e.String())
	}
	return ve
}

// WriteManifest encodes m as indented JSON.
func WriteManifest(w io.Writer, m Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return nil
}

// ReadManifest validates and decodes a manifest or a bare field array. Ids
// must be unique and, when the page count is known, pages must exist.
func ReadManifest(r io.Reader) (Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	if err := ValidateManifest(data); err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		m.Version = ManifestVersion
		err = json.Unmarshal(trimmed, &m.Fields)
	} else {
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Fields == nil {
		m.Fields = []domain.Field{}
	}

	ve := &ValidationError{}
	seen := map[string]bool{}
	for i, f := range m.Fields {
		if seen[f.ID] {
			ve.Problems = append(ve.Problems, fmt.Sprintf("fields.%d: duplicate id %q", i, f.ID))
		}
		seen[f.ID] = true
		if m.Pages > 0 && f.Page > m.Pages {
			ve.Problems = append(ve.Problems, fmt.Sprintf("fields.%d: page %d beyond %d pages", i, f.Page, m.Pages))
		}
	}
	if len(ve.Problems) > 0 {
		return Manifest{}, ve
	}
	return m, nil
}
