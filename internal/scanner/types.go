// Package scanner discovers the files of a project that should be indexed,
// honouring exclusion patterns, sensitive-file rules and .gitignore files.
package scanner

import (
	"strings"
	"time"
)

// FileInfo describes a discovered file.
type FileInfo struct {
	Path    string // slash-separated, relative to the scan root
	AbsPath string
	Size    int64
	ModTime time.Time
}

// ScanOptions configures a scan.
type ScanOptions struct {
	// RootDir is the directory to scan (default ".").
	RootDir string

	// IncludePatterns restricts results to files matching at least one
	// pattern (gitignore syntax). Empty means every file.
	IncludePatterns []string

	// Extensions restricts results to these extensions ("go" or ".go").
	Extensions []string

	// ExcludePatterns are extra exclusions in gitignore syntax.
	ExcludePatterns []string

	// RespectGitignore applies .gitignore files found under the root.
	RespectGitignore bool

	// MaxFileSize skips larger files (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// FollowSymlinks includes symlinks that point at regular files.
	FollowSymlinks bool
}

// ScanResult is one item of the scan stream: a file or a walk error.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize is the default size cap (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// DefaultExcludes are always applied.
var DefaultExcludes = []string{
	".git/",
	".tokindex/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	".venv/",
	"*.min.js",
	"*.min.css",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
}

// SensitivePatterns are never indexed.
var SensitivePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
	".aws/",
	".ssh/",
}

func normalizeExtensions(exts []string) map[string]bool {
	if len(exts) == 0 {
		return nil
	}
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}
