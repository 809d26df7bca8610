package main

import (
	"os"

	"github.com/psantana5/xwrap/cmd/xwrap/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
