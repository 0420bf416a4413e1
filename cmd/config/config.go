// Package config provides commands for inspecting the effective configuration.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/voxrec/internal/conf"
)

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	var outPath string
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration as YAML",
		Long:  "Print the configuration after defaults, config file and environment are merged. With --output the result is written to a file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath != "" {
				if err := conf.SaveYAMLConfig(outPath, settings); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "configuration written to %s\n", outPath)
				return nil
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(settings); err != nil {
				return fmt.Errorf("error encoding settings: %w", err)
			}
			return enc.Close()
		},
	}
	dumpCmd.Flags().StringVarP(&outPath, "output", "o", "", "Write to this file instead of stdout")

	cmd.AddCommand(dumpCmd)
	return cmd
}
