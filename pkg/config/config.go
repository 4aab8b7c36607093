// Package config loads tokenhints settings from defaults, a config file,
// the environment and the client's initialization options, in that order of
// increasing precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/tokenhints/pkg/annotation"
	"github.com/walteh/tokenhints/pkg/engine"
	"github.com/walteh/tokenhints/pkg/tokens"
)

const (
	FileName  = ".tokenhints.yaml"
	EnvPrefix = "TOKENHINTS"
)

// Keys are single words so that camelCase client options, yaml keys and
// environment variables all resolve to the same setting.
type Config struct {
	Enabled           bool     `mapstructure:"enabled"`
	DebounceMs        int      `mapstructure:"debouncems"`
	InstantLineDelta  int      `mapstructure:"instantlinedelta"`
	LabelMax          int      `mapstructure:"labelmax"`
	HoverTitle        string   `mapstructure:"hovertitle"`
	CompletionPrefix  string   `mapstructure:"completionprefix"`
	Languages         []string `mapstructure:"languages"`
	Include           []string `mapstructure:"include"`
	TokenFiles        []string `mapstructure:"tokenfiles"`
	RequireDependency string   `mapstructure:"requiredependency"`
}

func Defaults() map[string]any {
	return map[string]any{
		"enabled":           true,
		"debouncems":        500,
		"instantlinedelta":  100,
		"labelmax":          annotation.DefaultLabelMax,
		"hovertitle":        annotation.DefaultHoverTitle,
		"completionprefix":  "antd",
		"languages":         []string{"javascript", "javascriptreact", "typescript", "typescriptreact", "vue"},
		"include":           []string{},
		"tokenfiles":        []string{},
		"requiredependency": "antd",
	}
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c *Config) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	if c.DebounceMs >= 0 {
		cfg.Debounce = c.Debounce()
	}
	if c.InstantLineDelta >= 0 {
		cfg.InstantLineDelta = c.InstantLineDelta
	}
	if c.LabelMax > 0 {
		cfg.Factory.LabelMax = c.LabelMax
	}
	if c.HoverTitle != "" {
		cfg.Factory.HoverTitle = c.HoverTitle
	}
	return cfg
}

// ResolveTokenFiles makes relative token file paths absolute against root.
func (c *Config) ResolveTokenFiles(root string) []string {
	out := make([]string, 0, len(c.TokenFiles))
	for _, f := range c.TokenFiles {
		if !filepath.IsAbs(f) && root != "" {
			f = filepath.Join(root, f)
		}
		out = append(out, filepath.Clean(f))
	}
	return out
}

// Source is the embedded defaults overridden by the configured token files.
func (c *Config) Source(fs afero.Fs, root string) tokens.Source {
	if len(c.TokenFiles) == 0 {
		return tokens.DefaultSource()
	}
	return tokens.NewFileSource(fs, tokens.DefaultSource(), c.ResolveTokenFiles(root)...)
}

type Loader struct {
	v *viper.Viper
}

func NewLoader(fs afero.Fs) *Loader {
	v := viper.New()
	v.SetFs(fs)
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Viper exposes the underlying instance so callers can bind flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// ReadFile reads file, or FileName inside dir when file is empty. A missing
// default file is not an error; a missing explicit file is.
func (l *Loader) ReadFile(file, dir string) error {
	explicit := file != ""
	if !explicit {
		file = filepath.Join(dir, FileName)
	}
	l.v.SetConfigFile(file)
	l.v.SetConfigType("yaml")
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && (errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil
		}
		return errors.Errorf("reading config %s: %w", file, err)
	}
	return nil
}

// Merge overlays client supplied settings. Keys are matched case-insensitively.
func (l *Loader) Merge(settings map[string]any) error {
	if len(settings) == 0 {
		return nil
	}
	flat := make(map[string]any, len(settings))
	for k, val := range settings {
		flat[strings.ToLower(k)] = val
	}
	if err := l.v.MergeConfigMap(flat); err != nil {
		return errors.Errorf("merging settings: %w", err)
	}
	return nil
}

func (l *Loader) Config() (*Config, error) {
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return nil, errors.Errorf("decoding config: %w", err)
	}
	return &c, nil
}

// Load is the common path: defaults, then the config file found in dir.
func Load(fs afero.Fs, file, dir string) (*Loader, *Config, error) {
	l := NewLoader(fs)
	if err := l.ReadFile(file, dir); err != nil {
		return nil, nil, err
	}
	c, err := l.Config()
	if err != nil {
		return nil, nil, err
	}
	return l, c, nil
}
