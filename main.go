package main

import (
	"context"
	"os"

	"github.com/reverie-dev/reverie/pkg/cli"
)

var version = "dev"

func main() {
	if err := cli.Run(context.Background(), os.Args, version); err != nil {
		os.Exit(1)
	}
}
