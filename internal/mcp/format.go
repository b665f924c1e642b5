package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/tokindex/internal/search"
)

// FormatSearchResult formats a query result as markdown.
func FormatSearchResult(res *search.Result) string {
	if res.QueryTokens == 0 {
		return fmt.Sprintf("Query \"%s\" contains no searchable tokens.", res.Query)
	}
	if len(res.Paths) == 0 {
		return fmt.Sprintf("No files found for \"%s\" (%d of %d tokens are in the index).",
			res.Query, res.MatchedTokens, res.QueryTokens)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", res.Query)
	fmt.Fprintf(&sb, "Found %d file%s", len(res.Paths), plural(len(res.Paths)))
	if res.Candidates > len(res.Paths) {
		fmt.Fprintf(&sb, " (%d before filters and limit)", res.Candidates)
	}
	mode := string(res.Mode)
	if res.Fuzzy {
		mode += ", fuzzy"
	}
	fmt.Fprintf(&sb, " • mode: %s • tokens: %d/%d matched • %s\n\n",
		mode, res.MatchedTokens, res.QueryTokens, res.Elapsed.Round(time.Microsecond))

	writePaths(&sb, res.Paths)
	return sb.String()
}

// FormatGlobResult formats a file name search as markdown.
func FormatGlobResult(res *search.GlobResult) string {
	if res.Total == 0 {
		return fmt.Sprintf("No indexed files match `%s`.", res.Pattern)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Files matching `%s`\n\n", res.Pattern)
	if len(res.Paths) < res.Total {
		fmt.Fprintf(&sb, "Showing %d of %d files\n\n", len(res.Paths), res.Total)
	} else {
		fmt.Fprintf(&sb, "Found %d file%s\n\n", res.Total, plural(res.Total))
	}
	writePaths(&sb, res.Paths)
	return sb.String()
}

func writePaths(sb *strings.Builder, paths []string) {
	for _, p := range paths {
		fmt.Fprintf(sb, "- `%s`\n", p)
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
