package main

import (
	"os"

	"github.com/greenghost107/TradersMind-chartBot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
