package search

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/gitignore"
)

// Mode selects how per-token posting sets are combined.
type Mode string

const (
	// ModeAnd requires every query token (default).
	ModeAnd Mode = "and"
	// ModeOr requires at least one query token.
	ModeOr Mode = "or"
)

// ParseMode parses "and"/"or" case-insensitively. Empty means ModeAnd.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "and":
		return ModeAnd, nil
	case "or":
		return ModeOr, nil
	default:
		return "", tkerrors.New(tkerrors.ErrCodeInvalidMode, fmt.Sprintf("unknown search mode %q", s), nil).
			WithSuggestion("Use 'and' or 'or'")
	}
}

// Options is the complete per-query configuration. It is a value: the engine
// keeps no query state between calls.
type Options struct {
	Mode  Mode
	Fuzzy bool

	// PathContains keeps paths containing this substring.
	PathContains string

	// PathExcludes drops paths containing any of these substrings.
	PathExcludes []string

	// Globs keeps paths matching at least one pattern. A pattern without "/"
	// is matched against the file name, otherwise against the whole path.
	Globs []string

	// Limit caps the number of paths returned (0 = unlimited).
	Limit int
}

// DefaultOptions returns AND mode, exact matching, no filters.
func DefaultOptions() Options {
	return Options{Mode: ModeAnd}
}

// Validate checks mode, limit and glob syntax.
func (o Options) Validate() error {
	_, err := o.compile()
	return err
}

func (o Options) mode() Mode {
	if o.Mode == "" {
		return ModeAnd
	}
	return o.Mode
}

// filter is the compiled post-filter chain of one query.
type filter struct {
	globs    []globMatcher
	contains string
	excludes []string
	limit    int
}

type globMatcher struct {
	re       *regexp.Regexp
	basename bool
}

func (g globMatcher) match(p string) bool {
	if g.basename {
		return g.re.MatchString(path.Base(p))
	}
	return g.re.MatchString(p)
}

func compileGlob(pattern string) (globMatcher, error) {
	re, err := gitignore.CompileGlob(pattern)
	if err != nil {
		return globMatcher{}, tkerrors.New(tkerrors.ErrCodeInvalidGlob, err.Error(), err).
			WithDetail("glob", pattern)
	}
	return globMatcher{re: re, basename: !strings.Contains(pattern, "/")}, nil
}

func (o Options) compile() (*filter, error) {
	switch o.Mode {
	case "", ModeAnd, ModeOr:
	default:
		return nil, tkerrors.New(tkerrors.ErrCodeInvalidMode, fmt.Sprintf("unknown search mode %q", o.Mode), nil)
	}
	if o.Limit < 0 {
		return nil, tkerrors.ValidationError(fmt.Sprintf("limit must not be negative, got %d", o.Limit), nil)
	}

	f := &filter{contains: o.PathContains, limit: o.Limit}
	for _, g := range o.Globs {
		m, err := compileGlob(g)
		if err != nil {
			return nil, err
		}
		f.globs = append(f.globs, m)
	}
	for _, x := range o.PathExcludes {
		if x != "" {
			f.excludes = append(f.excludes, x)
		}
	}
	return f, nil
}

// apply runs glob, contains, excludes and limit in that order.
func (f *filter) apply(paths []string) []string {
	out := paths[:0]
	for _, p := range paths {
		if f.keep(p) {
			out = append(out, p)
		}
	}
	if f.limit > 0 && len(out) > f.limit {
		out = out[:f.limit]
	}
	return out
}

func (f *filter) keep(p string) bool {
	if len(f.globs) > 0 && !f.anyGlob(p) {
		return false
	}
	if f.contains != "" && !strings.Contains(p, f.contains) {
		return false
	}
	for _, x := range f.excludes {
		if strings.Contains(p, x) {
			return false
		}
	}
	return true
}

func (f *filter) anyGlob(p string) bool {
	for _, g := range f.globs {
		if g.match(p) {
			return true
		}
	}
	return false
}
