package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knowligo/knowligo-go/internal/version"
)

// NewVersionCmd constructs the `knowligo version` subcommand, which prints
// the build metadata stamped by -ldflags (see internal/version).
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the knowligo version, git commit, and build date",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("knowligo %s\n", version.String())
		},
	}
}
