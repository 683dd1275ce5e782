package main

import (
	"fmt"
	"os"

	"speaker-split/cmd/sps/cmd"
	"speaker-split/internal/config"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration warning: %v\n", err)
	}

	cmd.Execute()
}
