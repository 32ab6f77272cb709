package main

import (
	"os"

	"github.com/majorcontext/darkroom/cmd/darkroom/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
