package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/periscope-debug/periscope/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("periscope", version.Version)
	},
}
