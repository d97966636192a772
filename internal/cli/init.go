package cli

import (
	"os"

	"github.com/pankajredekar/catalog/internal/utils"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a catalog project",
	Long:  "Creates a catalog.yml configuration file in the current directory",
	Run: func(cmd *cobra.Command, args []string) {
		configPath := "catalog.yml"
		if utils.FileExists(configPath) {
			utils.PrintWarning("catalog.yml already exists")
			return
		}

		config := map[string]interface{}{
			"listen_addr":            ":8080",
			"public_url":             "http://localhost:8080",
			"database_url":           "sqlite://catalog.db",
			"secret_key":             "change-this-secret",
			"session_expire_minutes": 60,
			"demo_categories":        "Soccer,Basketball,Snowboarding",
			"demo_items":             "Ball:1,Jersey:1,Goggles:3",
			"oauth": map[string]interface{}{
				"client_id":     "",
				"client_secret": "",
				"discovery_url": "https://accounts.google.com/.well-known/openid-configuration",
				"scopes":        "openid email",
				"callback_path": "/oauth2callback",
			},
		}

		data, err := yaml.Marshal(config)
		if err != nil {
			utils.PrintError("Failed to generate config: %v", err)
			os.Exit(1)
		}

		if err := os.WriteFile(configPath, data, 0644); err != nil {
			utils.PrintError("Failed to write config file: %v", err)
			os.Exit(1)
		}

		utils.PrintSuccess("Initialized catalog project")
		utils.PrintInfo("Created catalog.yml")
		utils.PrintInfo("Fill in the oauth client registration before serving")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
