package main

import (
	"os"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/certichain/cmd/certichain/cmd"
)

func main() {
	memguard.CatchInterrupt()
	code := cmd.Execute()
	memguard.Purge()
	os.Exit(code)
}
