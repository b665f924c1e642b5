package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/scanner"
	"github.com/Aman-CERP/tokindex/internal/search"
	"github.com/Aman-CERP/tokindex/internal/tokenizer"
)

var envVars = []string{
	"TOKINDEX_LOG_LEVEL",
	"TOKINDEX_WORKERS",
	"TOKINDEX_MIN_TOKEN_LENGTH",
	"TOKINDEX_CONNECTORS",
	"TOKINDEX_TELEMETRY",
	"TOKINDEX_MAX_FILE_SIZE",
}

// isolate points the user config at an empty directory and clears every
// TOKINDEX_* variable for the duration of the test.
func isolate(t *testing.T) string {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	for _, name := range envVars {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	return xdg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration at all
	cfg := NewConfig()

	// Then: defaults match the tokenizer, scanner and search packages
	require.NotNil(t, cfg)
	assert.Equal(t, CurrentVersion, cfg.Version)
	assert.Equal(t, tokenizer.DefaultPolicy(), cfg.Policy())
	assert.Equal(t, int64(scanner.DefaultMaxFileSize), cfg.Build.MaxFileSize)
	assert.Equal(t, 0, cfg.Build.Workers)
	assert.True(t, cfg.Build.RespectGitignore)
	assert.False(t, cfg.Build.FollowSymlinks)
	assert.Equal(t, "and", cfg.Search.Mode)
	assert.Equal(t, search.DefaultCacheSize, cfg.Search.CacheSize)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDuration())
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_ProjectFile_OverridesOnlyPresentKeys(t *testing.T) {
	isolate(t)

	// Given: a project config touching a few keys
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigFile), `
tokenizer:
  connectors: "_"
build:
  workers: 3
search:
  mode: or
  limit: 25
paths:
  exclude:
    - "*.generated.go"
`)

	// When: loading
	cfg, err := Load(dir)

	// Then: present keys win, everything else keeps its default
	require.NoError(t, err)
	assert.Equal(t, "_", cfg.Tokenizer.Connectors)
	assert.Equal(t, tokenizer.DefaultMinLength, cfg.Tokenizer.MinLength)
	assert.Equal(t, 3, cfg.Build.Workers)
	assert.True(t, cfg.Build.RespectGitignore)
	assert.Equal(t, "or", cfg.Search.Mode)
	assert.Equal(t, 25, cfg.Search.Limit)
	assert.Equal(t, []string{"*.generated.go"}, cfg.Paths.Exclude)
	assert.Equal(t, search.Options{Mode: search.ModeOr, Limit: 25}, cfg.SearchOptions())
}

func TestLoad_EmptyConnectorsInFile(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigFile), "tokenizer:\n  connectors: \"\"\n")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "", cfg.Policy().Connectors)
}

func TestLoad_EmptyFile_IsDefaults(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigFile), "")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigFile), "build:\n  workers: 2\n")
	writeFile(t, filepath.Join(dir, ProjectConfigFileAlt), "build:\n  workers: 7\n")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Build.Workers)
	assert.Equal(t, filepath.Join(dir, ProjectConfigFile), ProjectConfigPath(dir))
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigFileAlt), "build:\n  workers: 7\n")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Build.Workers)
}

func TestLoad_ParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "build: [unclosed\n"},
		{"wrong field type", "build:\n  workers: many\n"},
		{"unknown key", "tokeniser:\n  min_length: 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, ProjectConfigFile), tt.content)

			_, err := Load(dir)

			require.Error(t, err)
			assert.Equal(t, tkerrors.ErrCodeConfigParse, tkerrors.GetCode(err))
		})
	}
}

func TestLoad_UserThenProjectThenEnv(t *testing.T) {
	xdg := isolate(t)

	// Given: user, project and env each set a different layer
	writeFile(t, filepath.Join(xdg, "tokindex", "config.yaml"), `
tokenizer:
  min_length: 3
build:
  workers: 2
paths:
  exclude: ["user-exclude/"]
`)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigFile), `
build:
  workers: 4
paths:
  exclude: ["project-exclude/"]
`)
	t.Setenv("TOKINDEX_WORKERS", "8")

	// When: loading
	cfg, err := Load(dir)

	// Then: each layer overrides the one below, excludes accumulate
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Tokenizer.MinLength)
	assert.Equal(t, 8, cfg.Build.Workers)
	assert.Equal(t, []string{"user-exclude/", "project-exclude/"}, cfg.Paths.Exclude)
}

func TestLoad_InvalidUserConfig_ReturnsError(t *testing.T) {
	xdg := isolate(t)
	writeFile(t, filepath.Join(xdg, "tokindex", "config.yaml"), "search: [\n")

	_, err := Load(t.TempDir())

	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "log level",
			env:  map[string]string{"TOKINDEX_LOG_LEVEL": "debug"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Server.LogLevel)
			},
		},
		{
			name: "min token length",
			env:  map[string]string{"TOKINDEX_MIN_TOKEN_LENGTH": "4"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 4, cfg.Policy().MinLength)
			},
		},
		{
			name: "connectors set to empty",
			env:  map[string]string{"TOKINDEX_CONNECTORS": ""},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "", cfg.Policy().Connectors)
			},
		},
		{
			name: "connectors",
			env:  map[string]string{"TOKINDEX_CONNECTORS": "_-."},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "_-.", cfg.Policy().Connectors)
			},
		},
		{
			name: "telemetry off",
			env:  map[string]string{"TOKINDEX_TELEMETRY": "false"},
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Telemetry.Enabled)
			},
		},
		{
			name: "max file size with unit",
			env:  map[string]string{"TOKINDEX_MAX_FILE_SIZE": "2MiB"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, int64(2*1024*1024), cfg.Build.MaxFileSize)
			},
		},
		{
			name: "max file size in bytes",
			env:  map[string]string{"TOKINDEX_MAX_FILE_SIZE": "4096"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, int64(4096), cfg.Build.MaxFileSize)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(t.TempDir())

			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_InvalidEnv_ReturnsConfigError(t *testing.T) {
	tests := map[string]string{
		"TOKINDEX_WORKERS":          "lots",
		"TOKINDEX_MIN_TOKEN_LENGTH": "two",
		"TOKINDEX_TELEMETRY":        "sometimes",
		"TOKINDEX_MAX_FILE_SIZE":    "big",
	}

	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			t.Setenv(name, value)

			_, err := Load(t.TempDir())

			require.Error(t, err)
			assert.Equal(t, tkerrors.CategoryConfig, tkerrors.GetCategory(err))
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"min length zero", func(c *Config) { c.Tokenizer.MinLength = 0 }, "min_length"},
		{"min length too large", func(c *Config) { c.Tokenizer.MinLength = 70000 }, "min_length"},
		{"alphanumeric connector", func(c *Config) { c.Tokenizer.Connectors = "_a" }, "connectors"},
		{"space connector", func(c *Config) { c.Tokenizer.Connectors = " " }, "connectors"},
		{"non-ascii connector", func(c *Config) { c.Tokenizer.Connectors = "é" }, "connectors"},
		{"punctuation connectors", func(c *Config) { c.Tokenizer.Connectors = "_-.$" }, ""},
		{"negative workers", func(c *Config) { c.Build.Workers = -1 }, "workers"},
		{"negative max size", func(c *Config) { c.Build.MaxFileSize = -1 }, "max_file_size"},
		{"unknown mode", func(c *Config) { c.Search.Mode = "xor" }, "search.mode"},
		{"mode is case-insensitive", func(c *Config) { c.Search.Mode = "OR" }, ""},
		{"negative limit", func(c *Config) { c.Search.Limit = -5 }, "search.limit"},
		{"negative cache", func(c *Config) { c.Search.CacheSize = -1 }, "cache_size"},
		{"bad debounce", func(c *Config) { c.Watch.Debounce = "soon" }, "debounce"},
		{"zero debounce", func(c *Config) { c.Watch.Debounce = "0s" }, "debounce"},
		{"sse transport", func(c *Config) { c.Server.Transport = "sse" }, "transport"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tkerrors.ErrCodeConfigInvalid, tkerrors.GetCode(err))
		})
	}
}

func TestLoad_InvalidValues_FailValidation(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigFile), "tokenizer:\n  min_length: 0\n")

	_, err := Load(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_length")
}

func TestScanOptions_CarriesBuildAndPaths(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.Include = []string{"src/"}
	cfg.Paths.Exclude = []string{"*.tmp"}
	cfg.Build.FollowSymlinks = true
	cfg.Build.MaxFileSize = 1024

	opts := cfg.ScanOptions("/repo")

	assert.Equal(t, &scanner.ScanOptions{
		RootDir:          "/repo",
		IncludePatterns:  []string{"src/"},
		ExcludePatterns:  []string{"*.tmp"},
		RespectGitignore: true,
		MaxFileSize:      1024,
		FollowSymlinks:   true,
	}, opts)
}

func TestGetUserConfigPath(t *testing.T) {
	t.Run("respects XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")

		assert.Equal(t, filepath.Join("/custom/config", "tokindex", "config.yaml"), GetUserConfigPath())
	})

	t.Run("defaults to ~/.config", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, err := os.UserHomeDir()
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(home, ".config", "tokindex", "config.yaml"), GetUserConfigPath())
	})
}

func TestUserConfigExists(t *testing.T) {
	xdg := isolate(t)
	assert.False(t, UserConfigExists())

	writeFile(t, filepath.Join(xdg, "tokindex", "config.yaml"), "version: 1\n")

	assert.True(t, UserConfigExists())
}

func TestFindProjectRoot(t *testing.T) {
	t.Run("git directory", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
		deep := filepath.Join(root, "a", "b", "c")
		require.NoError(t, os.MkdirAll(deep, 0o755))

		got, err := FindProjectRoot(deep)

		require.NoError(t, err)
		assert.Equal(t, root, got)
	})

	t.Run("config file", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, ProjectConfigFileAlt), "")
		sub := filepath.Join(root, "pkg")
		require.NoError(t, os.MkdirAll(sub, 0o755))

		got, err := FindProjectRoot(sub)

		require.NoError(t, err)
		assert.Equal(t, root, got)
	})

	t.Run("no markers returns start", func(t *testing.T) {
		dir := t.TempDir()

		got, err := FindProjectRoot(dir)

		require.NoError(t, err)
		// a temp dir has no markers unless the system temp lives in a repo
		assert.NotEmpty(t, got)
		assert.True(t, filepath.IsAbs(got))
	})
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	isolate(t)

	// Given: a customised config written to a project
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Tokenizer.Connectors = "_-."
	cfg.Search.Fuzzy = true
	cfg.Paths.Exclude = []string{"build/"}
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectConfigFile)))

	// When: loading it back
	loaded, err := Load(dir)

	// Then: the same values come back
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
