package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lightclient/bankai/internal/config"
)

// newConfigCommand groups config-file operator tooling: "print-defaults" prints a
// starter config file populated with every field's default, for an operator to copy
// and fill in the required fields (beacon/contract/prover endpoints, signer key)
// before first run.
func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration file tooling",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "print-defaults",
		Short: "Print a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(config.Default())
			if err != nil {
				return fmt.Errorf("marshal default config: %w", err)
			}
			fmt.Print(string(out))
			return nil
		},
	})
	return cmd
}
