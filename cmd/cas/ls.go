package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List stored assets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closer, err := openReader(args[0])
		if err != nil {
			return err
		}
		defer closer()

		for h := range store.List() {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), h); err != nil {
				return err
			}
		}
		return nil
	},
}
