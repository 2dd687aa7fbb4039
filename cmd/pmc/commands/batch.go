package commands

import (
	"fmt"
	"pmcautomation/cmd/pmc/globals"
	"pmcautomation/internal/batch"

	"github.com/spf13/cobra"
)

var (
	newBatchCode *string
	newBatchTime *bool
)

func init() {
	newBatchCode = batchNewCmd.Flags().String("code", "", "The batch code, defaults to the current date.")
	newBatchTime = batchNewCmd.Flags().Bool("time", false, "Append the current time to a generated batch code.")

	batchCmd.AddCommand(batchNewCmd)
	rootCmd.AddCommand(batchCmd)
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Manages batch folders.",
}

var batchNewCmd = &cobra.Command{
	Use:   "new [--code <code>] [--time]",
	Short: "Creates a batch folder and prints its path.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		value := globals.Get(cmd.Context())
		path, err := batch.NewFolder(batch.FolderOptions{
			Root:        value.Config.BatchRoot,
			Code:        *newBatchCode,
			IncludeTime: *newBatchTime,
			Test:        value.Test,
		}, value.Clock, value.Tel)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}
