package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/strongdm/crashdispatch/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Load the configuration and print the effective values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			slog.Error("Failed to load config", "error", err)
			return err
		}

		masked := *cfg
		if masked.Client.HTTP.APIKey != "" {
			masked.Client.HTTP.APIKey = "[REDACTED]"
		}
		if masked.Client.Redis.Password != "" {
			masked.Client.Redis.Password = "[REDACTED]"
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(masked)
	},
}
