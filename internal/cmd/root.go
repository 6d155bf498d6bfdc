package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/periscope-debug/periscope/internal/version"
)

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: user config dir)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug logging")

	rootCmd.AddCommand(versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "periscope",
	Short: "A debugger console with an embeddable terminal UI",
	Long: "Runs a debugger-style console whose terminal can be taken over by a\n" +
		"full-screen UI on demand, and handed back, without disturbing the\n" +
		"session in between.",
	Example: `
# Run the interactive console
periscope

# Run with debug logging
periscope -d

# Print version
periscope version

# Inside the console
(periscope) ui enable
(periscope) step
(periscope) ui disable
(periscope) quit
  `,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHost(cmd)
	},
}

func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
