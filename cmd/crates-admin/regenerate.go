// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/crates-admin/internal/batch"
	"github.com/pdiddy/crates-admin/internal/index"
	"github.com/pdiddy/crates-admin/internal/reconcile"
	"github.com/pdiddy/crates-admin/pkg/types"
)

const normalizePrompt = "phase 1 - normalize?"

var regenerateCmd = &cobra.Command{
	Use:   "regenerate-index [crates...]",
	Short: "Re-create the index from the database",
	Long: `regenerate-index runs in two phases, each behind its own confirmation.

Phase 1 normalizes every index file under --index-dir: dependencies are put
in canonical order and blank lines dropped. Phase 2 rewrites the index file
of every crate in the database (or only the named crates) from the
database, creating directories as needed.

Phase 1 stops at the first file it cannot parse. In phase 2 a crate that
fails is reported and skipped.`,
	RunE: runRegenerate,
}

func init() {
	flags := regenerateCmd.Flags()
	flags.String("index-dir", ".", "root of the index tree")
	flags.Bool("skip-normalize", false, "skip phase 1")
	addBatchFlags(flags)

	rootCmd.AddCommand(regenerateCmd)
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	bindBatchFlags(cmd.Flags())
	skipNormalize, _ := cmd.Flags().GetBool("skip-normalize")

	cfg := types.RegenerateConfig{
		BatchConfig:   batchConfig(),
		IndexDir:      viper.GetString("index_dir"),
		SkipNormalize: skipNormalize,
		Crates:        args,
	}

	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	d := newDriver(cfg.BatchConfig, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())

	if !cfg.SkipNormalize {
		if err := normalizePhase(cmd.OutOrStdout(), d.Confirm, cfg.IndexDir); err != nil {
			return err
		}
	}

	job := &reconcile.RegenerateJob{DB: store.DB(), Root: cfg.IndexDir, Crates: cfg.Crates}
	summary, err := d.Run(ctx, job)
	if err != nil {
		return err
	}
	return finishRuns(cfg.BatchConfig, d, "regenerate-index", []batch.Summary{summary})
}

// normalizePhase walks root and, once confirmed, normalizes every file.
// Any failure aborts the command so phase 2 never runs over a tree that
// is half normalized.
func normalizePhase(out io.Writer, confirm batch.Confirmer, root string) error {
	files, err := index.Walk(root, index.DefaultSkip)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "found %d crates\n", len(files))
	if len(files) == 0 {
		return nil
	}

	ok, err := confirm.Confirm(normalizePrompt)
	if err != nil {
		return fmt.Errorf("reading confirmation: %w", err)
	}
	if !ok {
		return nil
	}
	if err := index.Normalize(files, logger); err != nil {
		return fmt.Errorf("phase 1: %w", err)
	}
	fmt.Fprintf(out, "normalized %d files\n", len(files))
	return nil
}
