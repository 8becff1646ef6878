package main

import (
	"fmt"
	"os"

	"github.com/jacentio/mpath/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "mpath:", err)
		os.Exit(1)
	}
}
