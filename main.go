package main

import (
	"os"

	"github.com/reheat-dev/reheat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
