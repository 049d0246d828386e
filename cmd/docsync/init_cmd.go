package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/utils"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file from flags and environment",
		Long: `Validate the given settings and save them so later runs of
"docsync sync" need no flags. The file goes to --config when set,
otherwise to ~/.docsync/config.yaml. Per-run switches such as --dry-run
and --yes are never saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := initConfigPath(cmd)
			if err != nil {
				return err
			}

			force, _ := cmd.Flags().GetBool("force")
			if utils.FileExists(path) && !force {
				return &config.Error{Key: "file", Reason: fmt.Sprintf("'%s' already exists, use --force to overwrite", path)}
			}

			cfg, err := mergeConfig(cmd, false)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green.Render("Config written to"), path)
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("store", "s", "", "remote store identity")
	cmd.Flags().StringP("endpoint", "e", "", "document store endpoint URL")
	cmd.Flags().String("backend", "", "store backend: http, s3 or memory (default http)")
	cmd.Flags().StringP("dir", "d", "", "local directory to sync (default .)")
	cmd.Flags().StringSlice("include", nil, "glob of files to include, repeatable")
	cmd.Flags().StringSlice("exclude", nil, "glob of files to exclude, repeatable")
	cmd.Flags().Bool("delete", false, "delete remote documents missing locally")
	cmd.Flags().IntP("concurrency", "j", 0, "number of transfers in flight (default 8)")
	cmd.Flags().BoolP("force", "f", false, "overwrite an existing config file")
	return cmd
}

func initConfigPath(cmd *cobra.Command) (string, error) {
	if cmd.Flag("config").Changed {
		p, _ := cmd.Flags().GetString("config")
		return utils.ResolvePath(p)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".docsync", configFileName+".yaml"), nil
}
