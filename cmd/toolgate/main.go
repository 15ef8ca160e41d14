package main

import (
	"os"

	"github.com/toolgate/toolgate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
