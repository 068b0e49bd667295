package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version and Build are set at link time via -ldflags.
var (
	Version = "dev"
	Build   = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			_ = json.NewEncoder(os.Stdout).Encode(map[string]string{
				"version": Version,
				"build":   Build,
			})
			return
		}
		fmt.Printf("tamma version %s (%s)\n", Version, Build)
	},
}

func init() {
	rootCmd.Flags().Bool("version", false, "Print version and exit")
	rootCmd.AddCommand(versionCmd)
}
