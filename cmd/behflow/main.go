package main

import (
	"os"

	"github.com/behflow/behflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
