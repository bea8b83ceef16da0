// Package main is the entry point for the xtarr application.
package main

import (
	"os"

	"github.com/jmylchreest/xtarr/cmd/xtarr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
