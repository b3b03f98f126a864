package main

import (
	"github.com/spf13/cobra"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	return a.store.Close()
}
