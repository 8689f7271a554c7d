// Package config manages persisted application configuration. A Manager is
// an explicit handle constructed once and passed by reference into the
// pipeline and translators; nothing in this module reads ambient global
// configuration state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"pdf-translator/internal/logger"
)

const (
	// DefaultConfigFileName is the persisted configuration file name.
	DefaultConfigFileName = "config.json"
	// DefaultThreads is the default page worker count.
	DefaultThreads = 4
	// DefaultDPI is the render resolution for layout detection rasters.
	DefaultDPI = 72
	// DefaultSourceLang is the default source language code.
	DefaultSourceLang = "en"
	// DefaultTargetLang is the default target language code.
	DefaultTargetLang = "zh-CN"
)

// Pipeline holds the pipeline-level defaults.
type Pipeline struct {
	Threads         int    `mapstructure:"threads"`
	DPI             int    `mapstructure:"dpi"`
	SourceLang      string `mapstructure:"source_lang"`
	TargetLang      string `mapstructure:"target_lang"`
	ModelPath       string `mapstructure:"model_path"`
	FallbackFont    string `mapstructure:"fallback_font"`
	SkipSubsetFonts bool   `mapstructure:"skip_subset_fonts"`
}

// Manager loads, overlays and persists configuration.
type Manager struct {
	v    *viper.Viper
	path string
}

// NewManager creates a Manager backed by the file at configPath. An empty
// path selects <user config dir>/pdf-translator/config.json. A missing file
// is not an error; defaults apply.
func NewManager(configPath string) (*Manager, error) {
	if configPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolving user config dir: %w", err)
		}
		configPath = filepath.Join(dir, "pdf-translator", DefaultConfigFileName)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetDefault("pipeline.threads", DefaultThreads)
	v.SetDefault("pipeline.dpi", DefaultDPI)
	v.SetDefault("pipeline.source_lang", DefaultSourceLang)
	v.SetDefault("pipeline.target_lang", DefaultTargetLang)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(underlying(err)) {
			return nil, fmt.Errorf("reading config %s: %w", configPath, err)
		}
		logger.Debug("no config file found, using defaults")
	}

	return &Manager{v: v, path: configPath}, nil
}

func underlying(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok && u.Unwrap() != nil {
		return u.Unwrap()
	}
	return err
}

// Pipeline returns the pipeline defaults.
func (m *Manager) Pipeline() Pipeline {
	p := Pipeline{}
	if err := m.v.UnmarshalKey("pipeline", &p); err != nil {
		logger.Warn("malformed pipeline config, using defaults")
		return Pipeline{
			Threads:    DefaultThreads,
			DPI:        DefaultDPI,
			SourceLang: DefaultSourceLang,
			TargetLang: DefaultTargetLang,
		}
	}
	return p
}

// ServiceParams returns the persisted parameter map for a translation
// service, overlaid with any matching environment variables of the form
// PDFTRANSLATOR_<SERVICE>_<KEY>.
func (m *Manager) ServiceParams(service string) map[string]any {
	params := map[string]any{}
	if sub := m.v.GetStringMap("services." + service); sub != nil {
		for k, val := range sub {
			params[k] = val
		}
	}
	prefix := "PDFTRANSLATOR_" + strings.ToUpper(service) + "_"
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, prefix) {
			continue
		}
		key, val, ok := strings.Cut(strings.TrimPrefix(kv, prefix), "=")
		if !ok {
			continue
		}
		params[strings.ToLower(key)] = val
	}
	return params
}

// SetServiceParam persists a single service parameter.
func (m *Manager) SetServiceParam(service, key string, value any) {
	m.v.Set("services."+service+"."+key, value)
}

// Save writes the configuration file, creating parent directories as needed.
func (m *Manager) Save() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := m.v.WriteConfigAs(m.path); err != nil {
		return fmt.Errorf("writing config %s: %w", m.path, err)
	}
	return nil
}

// Path returns the backing file path.
func (m *Manager) Path() string { return m.path }
