package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/output"
)

func newGlobCmd() *cobra.Command {
	var (
		limit     int
		format    string
		indexPath string
	)

	cmd := &cobra.Command{
		Use:   "glob <pattern>",
		Short: "List indexed files whose path matches a glob",
		Long: `List indexed files whose path matches a glob pattern, in index order.

A pattern without "/" is matched against the file name, otherwise against
the whole path. "**" matches any number of directories.

Examples:
  tokindex glob '*.go'
  tokindex glob 'internal/**/*_test.go' -n 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return tkerrors.ValidationError(err.Error(), nil)
			}

			qc, err := openQueryContext(indexPath, false)
			if err != nil {
				return err
			}
			defer qc.Close()

			res, err := qc.engine.Glob(args[0], limit)
			if err != nil {
				return err
			}

			if f == output.FormatJSON {
				return output.New(cmd.OutOrStdout()).JSON(res)
			}
			output.New(cmd.OutOrStdout()).Lines(res.Paths)

			summary := fmt.Sprintf("%d file%s", res.Total, plural(res.Total))
			if len(res.Paths) < res.Total {
				summary = fmt.Sprintf("showing %d of %d files", len(res.Paths), res.Total)
			}
			output.New(cmd.ErrOrStderr()).Hint(fmt.Sprintf("%s • %s", summary, res.Elapsed.Round(time.Microsecond)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of paths (0 = unlimited)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&indexPath, "index", "", "Query this container instead of .tokindex/index.tkix")

	return cmd
}
