package main

import (
	"fmt"
	rtdebug "runtime/debug"

	"github.com/spf13/cobra"
)

// Overridden at release time with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("fmukit %s (FMI 2.0 co-simulation)\n", version)
		if info, ok := rtdebug.ReadBuildInfo(); ok {
			fmt.Printf("built with %s\n", info.GoVersion)
		}
	},
}
