package main

import (
	"os"

	"chorus/cmd/chorus/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
