package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tssv/internal/mdoc"
)

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var drop []int

	cmd := &cobra.Command{
		Use:   "prune <mdoc>",
		Short: "Remove frames from a metadata file, keeping a backup of the original",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(drop) == 0 {
				return fmt.Errorf("no frames to drop (use --drop)")
			}
			selections := make(map[int]bool, len(drop))
			for _, id := range drop {
				selections[id] = false
			}
			writer := mdoc.NewWriter(ctx.cliLogger())
			result, err := writer.Write(args[0], selections)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Kept:    %s\n", joinIDs(result.Kept))
			fmt.Fprintf(out, "Removed: %s\n", joinIDs(result.Removed))
			if result.BackupCreated {
				fmt.Fprintf(out, "Backup written to %s\n", result.BackupPath)
			} else {
				fmt.Fprintf(out, "Existing backup kept at %s\n", result.BackupPath)
			}
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&drop, "drop", nil, "Frame IDs (ZValue) to remove, comma separated")
	return cmd
}

func joinIDs(ids []int) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
