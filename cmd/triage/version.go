package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"triage/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("triage version %s\n", version.Get())
	},
}
