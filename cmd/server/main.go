package main // Entry point package

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "items-api",
		Short:        "CRUD HTTP service for items",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Wait for the database, apply the schema and serve HTTP",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Wait for the database and apply the schema only",
			RunE:  runMigrate,
		},
	)
	return root
}
