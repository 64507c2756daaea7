package main

import (
	"os"

	"github.com/xupit3r/planedma/cmd/planedma/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
