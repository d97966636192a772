package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Catalog browsing and editing web service",
	Long:  "Catalog is a small web service for browsing and editing items grouped into categories, with OAuth-gated editing",
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}
