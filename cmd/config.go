// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	Long: `Print the configuration after applying defaults, the --config file and
command line overrides.

Redirect the output to create a starting config file:
  whv-bridge config > whv-bridge.toml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return config.Encode(os.Stdout, cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
