package main

import (
	"os"

	"tremolo.click/internal/cli"
)

func main() {
	os.Exit(cli.Main())
}
