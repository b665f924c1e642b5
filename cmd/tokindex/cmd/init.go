package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tokindex/internal/config"
	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/output"
	"github.com/Aman-CERP/tokindex/internal/store"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default .tokindex.yaml",
		Long: `Write a project configuration with every setting at its default value.

An existing configuration is left alone unless --force is given, in which
case it is backed up next to itself (the last 3 backups are kept) and
replaced.`,
		Example: `  # Configure the current project
  tokindex init

  # Reset an existing configuration
  tokindex init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			return runInit(cmd, root, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration (a backup is kept)")

	return cmd
}

func runInit(cmd *cobra.Command, root string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	path := filepath.Join(root, config.ProjectConfigFile)
	if existing := config.ProjectConfigPath(root); existing != "" {
		if !force {
			return tkerrors.ValidationError(fmt.Sprintf("configuration already exists: %s", existing), nil).
				WithSuggestion("Use --force to replace it; the current file is backed up")
		}
		backup, err := config.BackupFile(existing)
		if err != nil {
			return err
		}
		out.Statusf("💾", "Backed up %s to %s", filepath.Base(existing), filepath.Base(backup))
		path = existing
	}

	if err := config.NewConfig().WriteYAML(path); err != nil {
		return err
	}
	out.Successf("Wrote %s", path)
	out.Hint(fmt.Sprintf("   Add %s/ to .gitignore, then run 'tokindex index'.", filepath.Base(store.DataDir(root))))
	return nil
}
