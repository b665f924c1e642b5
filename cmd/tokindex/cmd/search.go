package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/output"
	"github.com/Aman-CERP/tokindex/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	or        bool
	fuzzy     bool
	contains  string
	excludes  []string
	globs     []string
	limit     int
	format    string
	indexPath string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Find files containing the query tokens",
		Long: `Find the files that contain the tokens of a query.

The query is split into tokens the same way files are. By default a file
must contain every token; --or accepts any token. --fuzzy matches tokens
through their trigrams, so partial identifiers are found too.

Matching paths are printed one per line in index order, so the output
pipes into other tools. The summary goes to stderr.

Tokens are stored as 64-bit hashes. Two different tokens sharing a hash
would match each other's files; this is not checked.

Examples:
  tokindex search NewServer
  tokindex search "config Load" --or
  tokindex search handl --fuzzy -g '*.go'
  tokindex search Token -p internal/ -x _test.go -f json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.or, "or", false, "Match files containing any token instead of all")
	cmd.Flags().BoolVar(&opts.fuzzy, "fuzzy", false, "Match tokens through shared trigrams")
	cmd.Flags().StringVarP(&opts.contains, "contains", "p", "", "Keep only paths containing this substring")
	cmd.Flags().StringArrayVarP(&opts.excludes, "exclude", "x", nil, "Drop paths containing this substring (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.globs, "glob", "g", nil, "Keep paths matching this glob (repeatable)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of paths (0 = search.limit or unlimited)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.indexPath, "index", "", "Query this container instead of .tokindex/index.tkix")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return tkerrors.ValidationError(err.Error(), nil)
	}
	qc, err := openQueryContext(opts.indexPath, true)
	if err != nil {
		return err
	}
	defer qc.Close()

	searchOpts := qc.config.SearchOptions()
	if opts.or {
		searchOpts.Mode = search.ModeOr
	}
	searchOpts.Fuzzy = searchOpts.Fuzzy || opts.fuzzy
	searchOpts.PathContains = opts.contains
	searchOpts.PathExcludes = opts.excludes
	searchOpts.Globs = opts.globs
	if opts.limit > 0 {
		searchOpts.Limit = opts.limit
	}

	res, err := qc.engine.Search(ctx, query, searchOpts)
	if err != nil {
		return err
	}
	if format == output.FormatJSON {
		if res.Paths == nil {
			res.Paths = []string{}
		}
		return output.New(cmd.OutOrStdout()).JSON(res)
	}

	output.New(cmd.OutOrStdout()).Lines(res.Paths)
	errOut := output.New(cmd.ErrOrStderr())
	errOut.Hint(searchSummary(res))
	return nil
}

// searchSummary is the one-line footer of text output.
func searchSummary(res *search.Result) string {
	if res.QueryTokens == 0 {
		return fmt.Sprintf("query %q contains no searchable tokens", res.Query)
	}

	mode := string(res.Mode)
	if res.Fuzzy {
		mode += ", fuzzy"
	}
	summary := fmt.Sprintf("%s file%s • %d/%d tokens matched • %s • %s",
		humanize.Comma(int64(len(res.Paths))), plural(len(res.Paths)),
		res.MatchedTokens, res.QueryTokens, mode, res.Elapsed.Round(time.Microsecond))
	if res.Candidates > len(res.Paths) {
		summary += fmt.Sprintf(" • %s before filters and limit", humanize.Comma(int64(res.Candidates)))
	}
	return summary
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
