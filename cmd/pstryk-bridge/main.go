package main

import (
	"os"

	"github.com/mateusz-orawczak/pstryk-bridge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
