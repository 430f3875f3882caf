/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type RenderConfig struct {
	// Scale is the zoom used for the active page; 1.0 maps one PDF point to one pixel.
	Scale float64 `yaml:"scale"`
	// ThumbnailScale is the fixed low scale for sidebar previews.
	ThumbnailScale float64 `yaml:"thumbnail_scale"`
}

type MarkerConfig struct {
	// Size is the fixed on-screen edge length of a field marker in pixels.
	Size float64 `yaml:"size"`
}

type SampleConfig struct {
	Name       string `yaml:"name"`
	Initials   string `yaml:"initials"`
	DateLayout string `yaml:"date_layout"` // Go reference layout
}

type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"` // empty means the per-user cache dir
	MaxBytes int64  `yaml:"max_bytes"`
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Theme          string `yaml:"theme"` // "system" | "light" | "dark"
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Render        RenderConfig  `yaml:"render"`
	Markers       MarkerConfig  `yaml:"markers"`
	Sample        SampleConfig  `yaml:"sample"`
	Cache         CacheConfig   `yaml:"cache"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false, Theme: "system"},
		Render:        RenderConfig{Scale: 1.5, ThumbnailScale: 0.25},
		Markers:       MarkerConfig{Size: 64},
		Sample:        SampleConfig{Name: "John Doe", Initials: "J.D", DateLayout: "02/01/2006"},
		Cache:         CacheConfig{Enabled: true, MaxBytes: 64 * 1024 * 1024},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile     = "SIGNLY_CONFIG"
	EnvRenderScale    = "SIGNLY_RENDER_SCALE"
	EnvThumbScale     = "SIGNLY_THUMBNAIL_SCALE"
	EnvMarkerSize     = "SIGNLY_MARKER_SIZE"
	EnvCacheEnabled   = "SIGNLY_CACHE"
	EnvCacheDir       = "SIGNLY_CACHE_DIR"
	EnvCacheMaxBytes  = "SIGNLY_THUMBS_MAX_BYTES"
	EnvTelemetryOptIn = "SIGNLY_TELEMETRY_OPT_IN"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "SIGNLY_LOG_LEVEL"
	EnvLogFormat = "SIGNLY_LOG_FORMAT"
	EnvLogSource = "SIGNLY_LOG_SOURCE"
	EnvLogFile   = "SIGNLY_LOG_FILE"
)

// ConfigPath returns the per-user config file path. SIGNLY_CONFIG wins when set.
func ConfigPath() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigFile)); v != "" {
		return v, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Signly")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Signly")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "signly")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "signly")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// CacheDir resolves the directory holding the thumbnail index.
func (c CacheConfig) CacheDir() (string, error) {
	if strings.TrimSpace(c.Dir) != "" {
		return c.Dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "signly"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// A missing file is not an error; a malformed one is reported but defaults are still returned.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		applyEnvOverrides(&cfg)
		return cfg, err
	}
	var loadErr error
	if data, err := os.ReadFile(path); err == nil {
		// start from defaults so keys absent from the file keep their default value
		fileCfg := Defaults()
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			loadErr = err
		} else {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	cfg.normalize()
	return cfg, loadErr
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.General.Theme != "" {
		dst.General.Theme = src.General.Theme
	}
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if src.Render.Scale > 0 {
		dst.Render.Scale = src.Render.Scale
	}
	if src.Render.ThumbnailScale > 0 {
		dst.Render.ThumbnailScale = src.Render.ThumbnailScale
	}
	if src.Markers.Size > 0 {
		dst.Markers.Size = src.Markers.Size
	}
	if strings.TrimSpace(src.Sample.Name) != "" {
		dst.Sample.Name = src.Sample.Name
	}
	if strings.TrimSpace(src.Sample.Initials) != "" {
		dst.Sample.Initials = src.Sample.Initials
	}
	if strings.TrimSpace(src.Sample.DateLayout) != "" {
		dst.Sample.DateLayout = src.Sample.DateLayout
	}
	dst.Cache.Enabled = src.Cache.Enabled
	if strings.TrimSpace(src.Cache.Dir) != "" {
		dst.Cache.Dir = strings.TrimSpace(src.Cache.Dir)
	}
	if src.Cache.MaxBytes > 0 {
		dst.Cache.MaxBytes = src.Cache.MaxBytes
	}
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v, ok := envFloat(EnvRenderScale); ok && v > 0 {
		cfg.Render.Scale = v
	}
	if v, ok := envFloat(EnvThumbScale); ok && v > 0 {
		cfg.Render.ThumbnailScale = v
	}
	if v, ok := envFloat(EnvMarkerSize); ok && v > 0 {
		cfg.Markers.Size = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheEnabled)); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheDir)); v != "" {
		cfg.Cache.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheMaxBytes)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Cache.MaxBytes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// Normalized returns c with unset or invalid numeric settings replaced by defaults.
func (c AppConfig) Normalized() AppConfig {
	c.normalize()
	return c
}

// normalize restores defaults for values that would break the coordinate model.
func (c *AppConfig) normalize() {
	d := Defaults()
	if c.Render.Scale <= 0 {
		c.Render.Scale = d.Render.Scale
	}
	if c.Render.ThumbnailScale <= 0 {
		c.Render.ThumbnailScale = d.Render.ThumbnailScale
	}
	if c.Markers.Size <= 0 {
		c.Markers.Size = d.Markers.Size
	}
	if c.Sample.DateLayout == "" {
		c.Sample.DateLayout = d.Sample.DateLayout
	}
}

func envFloat(key string) (float64, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env := map[string]string{
		"render.scale":             EnvRenderScale,
		"render.thumbnail_scale":   EnvThumbScale,
		"markers.size":             EnvMarkerSize,
		"cache.enabled":            EnvCacheEnabled,
		"cache.dir":                EnvCacheDir,
		"cache.max_bytes":          EnvCacheMaxBytes,
		"general.telemetry_opt_in": EnvTelemetryOptIn,
		"logging.level":            EnvLogLevel,
		"logging.format":           EnvLogFormat,
		"logging.source":           EnvLogSource,
		"logging.file":             EnvLogFile,
	}[key]
	if env == "" || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}
