// Package config loads tokindex configuration.
//
// Values are layered in order of increasing precedence: built-in defaults,
// the user config, the project's .tokindex.yaml and TOKINDEX_* environment
// variables. The merged result is validated before it is returned.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/scanner"
	"github.com/Aman-CERP/tokindex/internal/search"
	"github.com/Aman-CERP/tokindex/internal/tokenizer"
)

const (
	// ProjectConfigFile is the preferred project config name.
	ProjectConfigFile = ".tokindex.yaml"
	// ProjectConfigFileAlt is accepted when ProjectConfigFile is absent.
	ProjectConfigFileAlt = ".tokindex.yml"

	// CurrentVersion is written by 'tokindex init'.
	CurrentVersion = 1
)

// Config is the complete tokindex configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Tokenizer TokenizerConfig `yaml:"tokenizer" json:"tokenizer"`
	Build     BuildConfig     `yaml:"build" json:"build"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// PathsConfig configures which paths to include and exclude (gitignore syntax).
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	// Exclude is appended to the built-in excludes, never replaces them.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// TokenizerConfig is the token policy recorded in every index built.
type TokenizerConfig struct {
	MinLength  int    `yaml:"min_length" json:"min_length"`
	Connectors string `yaml:"connectors" json:"connectors"`
}

// BuildConfig tunes index construction.
type BuildConfig struct {
	// Workers is the tokenizer pool size (0 = number of CPUs).
	Workers int `yaml:"workers" json:"workers"`

	// MaxFileSize skips larger files, in bytes.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`

	RespectGitignore bool `yaml:"respect_gitignore" json:"respect_gitignore"`
	FollowSymlinks   bool `yaml:"follow_symlinks" json:"follow_symlinks"`
}

// SearchConfig holds query defaults; command-line flags override them.
type SearchConfig struct {
	Mode      string `yaml:"mode" json:"mode"`
	Fuzzy     bool   `yaml:"fuzzy" json:"fuzzy"`
	Limit     int    `yaml:"limit" json:"limit"`
	CacheSize int    `yaml:"cache_size" json:"cache_size"`
}

// WatchConfig configures 'tokindex watch'.
type WatchConfig struct {
	// Debounce is a Go duration string such as "500ms".
	Debounce string `yaml:"debounce" json:"debounce"`
}

// TelemetryConfig controls the local query log.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// ServerConfig configures 'tokindex serve' and logging.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Tokenizer: TokenizerConfig{
			MinLength:  tokenizer.DefaultMinLength,
			Connectors: tokenizer.DefaultConnectors,
		},
		Build: BuildConfig{
			MaxFileSize:      scanner.DefaultMaxFileSize,
			RespectGitignore: true,
		},
		Search: SearchConfig{
			Mode:      string(search.ModeAnd),
			CacheSize: search.DefaultCacheSize,
		},
		Watch:     WatchConfig{Debounce: "500ms"},
		Telemetry: TelemetryConfig{Enabled: true},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the user configuration file:
// $XDG_CONFIG_HOME/tokindex/config.yaml, or ~/.config/tokindex/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tokindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "tokindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "tokindex", "config.yaml")
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads the configuration for the project rooted at dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectConfigPath returns the config file used for dir, or "" if none exists.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{ProjectConfigFile, ProjectConfigFileAlt} {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

func (c *Config) loadFromFile(dir string) error {
	if p := ProjectConfigPath(dir); p != "" {
		return c.loadYAML(p)
	}
	return nil
}

// loadYAML overlays the keys present in the file onto c. Unknown keys are
// rejected so that typos do not silently fall back to defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return tkerrors.New(tkerrors.ErrCodeConfigNotFound, fmt.Sprintf("failed to read config file %s", path), err)
	}

	parsed := *c
	parsed.Paths.Include = nil
	parsed.Paths.Exclude = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&parsed); err != nil && !errors.Is(err, io.EOF) {
		return tkerrors.New(tkerrors.ErrCodeConfigParse, fmt.Sprintf("failed to parse config file %s", path), err).
			WithDetail("path", path)
	}

	exclude := append(c.Paths.Exclude, parsed.Paths.Exclude...)
	include := c.Paths.Include
	if len(parsed.Paths.Include) > 0 {
		include = parsed.Paths.Include
	}
	*c = parsed
	c.Paths.Exclude = exclude
	c.Paths.Include = include
	return nil
}

// applyEnvOverrides applies TOKINDEX_* environment variables.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("TOKINDEX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("TOKINDEX_WORKERS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return envError("TOKINDEX_WORKERS", v, err)
		}
		c.Build.Workers = n
	}
	if v := os.Getenv("TOKINDEX_MIN_TOKEN_LENGTH"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return envError("TOKINDEX_MIN_TOKEN_LENGTH", v, err)
		}
		c.Tokenizer.MinLength = n
	}
	// an empty value is meaningful here: no connector bytes
	if v, ok := os.LookupEnv("TOKINDEX_CONNECTORS"); ok {
		c.Tokenizer.Connectors = v
	}
	if v := os.Getenv("TOKINDEX_TELEMETRY"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return envError("TOKINDEX_TELEMETRY", v, err)
		}
		c.Telemetry.Enabled = b
	}
	if v := os.Getenv("TOKINDEX_MAX_FILE_SIZE"); v != "" {
		n, err := humanize.ParseBytes(strings.TrimSpace(v))
		if err != nil {
			return envError("TOKINDEX_MAX_FILE_SIZE", v, err)
		}
		c.Build.MaxFileSize = int64(n)
	}
	return nil
}

func envError(name, value string, err error) error {
	return tkerrors.ConfigError(fmt.Sprintf("invalid value %q for %s", value, name), err).
		WithDetail("env", name)
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return tkerrors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	if c.Tokenizer.MinLength < 1 || c.Tokenizer.MinLength > 0xFFFF {
		return invalid("tokenizer.min_length must be between 1 and 65535, got %d", c.Tokenizer.MinLength)
	}
	for i := 0; i < len(c.Tokenizer.Connectors); i++ {
		ch := c.Tokenizer.Connectors[i]
		if ch <= ' ' || ch >= 0x7F || isAlnum(ch) {
			return invalid("tokenizer.connectors must be printable ASCII punctuation, got %q", c.Tokenizer.Connectors)
		}
	}
	if c.Build.Workers < 0 {
		return invalid("build.workers must be non-negative, got %d", c.Build.Workers)
	}
	if c.Build.MaxFileSize < 0 {
		return invalid("build.max_file_size must be non-negative, got %d", c.Build.MaxFileSize)
	}
	if _, err := search.ParseMode(c.Search.Mode); err != nil {
		return invalid("search.mode must be 'and' or 'or', got %s", c.Search.Mode)
	}
	if c.Search.Limit < 0 {
		return invalid("search.limit must be non-negative, got %d", c.Search.Limit)
	}
	if c.Search.CacheSize < 0 {
		return invalid("search.cache_size must be non-negative, got %d", c.Search.CacheSize)
	}
	if d, err := time.ParseDuration(c.Watch.Debounce); err != nil || d <= 0 {
		return invalid("watch.debounce must be a positive duration, got %q", c.Watch.Debounce)
	}
	if !strings.EqualFold(c.Server.Transport, "stdio") {
		return invalid("server.transport must be 'stdio', got %s", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return invalid("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// Policy returns the tokenizer policy for new builds.
func (c *Config) Policy() tokenizer.Policy {
	return tokenizer.Policy{MinLength: c.Tokenizer.MinLength, Connectors: c.Tokenizer.Connectors}
}

// ScanOptions returns scanner options for root.
func (c *Config) ScanOptions(root string) *scanner.ScanOptions {
	return &scanner.ScanOptions{
		RootDir:          root,
		IncludePatterns:  c.Paths.Include,
		ExcludePatterns:  c.Paths.Exclude,
		RespectGitignore: c.Build.RespectGitignore,
		MaxFileSize:      c.Build.MaxFileSize,
		FollowSymlinks:   c.Build.FollowSymlinks,
	}
}

// SearchOptions returns the configured query defaults.
func (c *Config) SearchOptions() search.Options {
	mode, err := search.ParseMode(c.Search.Mode)
	if err != nil {
		mode = search.ModeAnd
	}
	return search.Options{Mode: mode, Fuzzy: c.Search.Fuzzy, Limit: c.Search.Limit}
}

// DebounceDuration returns watch.debounce, falling back to 500ms.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// FindProjectRoot walks up from startDir to the first directory holding a
// .git directory or a project config. It returns startDir (absolute) when
// neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) || ProjectConfigPath(currentDir) != "" {
			return currentDir, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
