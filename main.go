package main

import (
	"os"

	"pdf-translator/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
