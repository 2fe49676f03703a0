// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

// Command complianceengine runs the shop policy compliance analysis engine,
// either as a combined API+worker process (serve) or as a worker pool with
// no HTTP surface (worker).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "complianceengine",
	Short: "Shop policy compliance analysis engine",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./compliance.yaml", "path to the engine's YAML configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
