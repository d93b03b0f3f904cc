package main

import (
	"os"

	"github.com/DollhouseMCP/contentguard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
