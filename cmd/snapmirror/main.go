package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	app := newSnapMirrorApp()
	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "snapmirror: %+v\n", err)
		return -1
	}
	return 0
}
