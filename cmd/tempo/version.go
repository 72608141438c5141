package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tempo/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tempo version %s\n", version.Get())
	},
}
