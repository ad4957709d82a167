package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tpodg/hostprep/internal/task/catalog"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the task keys in execution order",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, spec := range catalog.Builtins() {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), spec.Key); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}
