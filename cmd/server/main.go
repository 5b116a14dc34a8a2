package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "chronicle",
		Short: "Crowdsourced documentation engine with quorum-verified edits",
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
