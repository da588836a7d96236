// Package main is the entry point for enginectl.
package main

import (
	"os"

	"github.com/batchpipe/engine/cmd/enginectl/cmd"

	_ "github.com/batchpipe/engine/internal/pipeline/builtin"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
