// Package main provides the entry point for the tokindex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/tokindex/cmd/tokindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
