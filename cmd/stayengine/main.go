package main

import (
	"os"

	"stayengine/cmd/stayengine/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
