package main

import (
	"os"

	"github.com/moolen/bdcraft/cmd/bdcraft/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
