package main

import (
	"os"

	"mobiletracking/internal/cli"
)

func main() { os.Exit(cli.Main()) }
