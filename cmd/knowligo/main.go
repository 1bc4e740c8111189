// Command knowligo is the entry point for the KnowLigo IT-support assistant.
// It provides a CLI interface (via Cobra) and an HTTP API server that answers
// customer questions in Spanish over an ingested knowledge base.
package main

import (
	"fmt"
	"os"

	"github.com/knowligo/knowligo-go/cmd/knowligo/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
