// Package main is the entry point for the devsync application
package main

import (
	"github.com/ethpandaops/devsync/cmd"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	cmd.Execute()
}
