package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is injected at build time with -ldflags "-X .../cmd.version=...",
// matching the teacher's cmd/rtmp-server version-string convention.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the streamcored version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
