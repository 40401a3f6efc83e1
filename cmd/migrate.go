package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the store and index schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := openBackends(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s)\n", cfg.Store.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
