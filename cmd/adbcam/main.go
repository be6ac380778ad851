// Package main is the entry point for the adbcam application.
package main

import (
	"os"

	"adbcam/cmd/adbcam/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
