package main

import (
	"os"

	"github.com/nsxbet/sql-rewriter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
