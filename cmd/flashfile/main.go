package main

import (
	"os"

	"github.com/tus/flashfile/cmd/flashfile/cli"
)

func main() {
	cli.ParseFlags()

	if cli.Flags.ShowVersion {
		cli.ShowVersion()
		return
	}

	if err := cli.Run(); err != nil {
		os.Exit(1)
	}
}
