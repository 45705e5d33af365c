// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/crates-admin/internal/batch"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Rewrite index files in canonical form without touching the database",
	Long: `normalize walks the index tree, sorts the dependencies of every record into
canonical order and drops blank lines. Files already in canonical form are
left untouched. This is phase 1 of regenerate-index on its own.`,
	Args: cobra.NoArgs,
	RunE: runNormalize,
}

func init() {
	flags := normalizeCmd.Flags()
	flags.String("index-dir", ".", "root of the index tree")
	flags.BoolP("yes", "y", false, "answer yes to the confirmation prompt")

	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	root, _ := cmd.Flags().GetString("index-dir")
	yes, _ := cmd.Flags().GetBool("yes")

	confirm := batch.Confirmer(batch.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()))
	if yes {
		confirm = batch.Always(true)
	}
	return normalizePhase(cmd.OutOrStdout(), confirm, root)
}
