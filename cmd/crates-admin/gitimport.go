// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/crates-admin/internal/batch"
	"github.com/pdiddy/crates-admin/internal/gitrepo"
	"github.com/pdiddy/crates-admin/internal/reconcile"
	"github.com/pdiddy/crates-admin/pkg/types"
)

var gitImportCmd = &cobra.Command{
	Use:   "git-import",
	Short: "Import missing fields from the index into the database",
	Long: `git-import lists the index files changed in a local checkout of the index
and, one file per transaction, copies fields the database does not have yet
(currently links) from each record into the matching version row. Values
already present in the database are never overwritten, so the import can be
re-run safely.

A file that fails to parse or update is rolled back, reported, and skipped;
the remaining files are still imported.`,
	Args: cobra.NoArgs,
	RunE: runGitImport,
}

func init() {
	flags := gitImportCmd.Flags()
	flags.String("index-dir", ".", "local checkout of the index repository")
	flags.String("revision", "", "revision to check out before importing (default: leave HEAD alone)")
	flags.String("since", "", "only import files changed between this revision and HEAD (default: all files)")
	addBatchFlags(flags)

	rootCmd.AddCommand(gitImportCmd)
}

func runGitImport(cmd *cobra.Command, args []string) error {
	bindBatchFlags(cmd.Flags())
	revision, _ := cmd.Flags().GetString("revision")
	since, _ := cmd.Flags().GetString("since")

	cfg := types.GitImportConfig{
		BatchConfig: batchConfig(),
		IndexDir:    viper.GetString("index_dir"),
		Revision:    revision,
		Since:       since,
	}

	ctx := cmd.Context()
	repo, err := gitrepo.Open(ctx, cfg.IndexDir, logger)
	if err != nil {
		return err
	}
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	job := &reconcile.ImportJob{
		Repo:     repo,
		DB:       store,
		Revision: cfg.Revision,
		Since:    cfg.Since,
	}
	d := newDriver(cfg.BatchConfig, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	summary, err := d.Run(ctx, job)
	if err != nil {
		return err
	}
	return finishRuns(cfg.BatchConfig, d, "git-import", []batch.Summary{summary})
}
