package cmd

import (
	"fmt"
	"io"
)

// Version is set at build time.
var Version = "dev"

const banner = `
   ____          _   _  ____ _           _
  / ___|___ _ __| |_(_)/ ___| |__   __ _(_)_ __
 | |   / _ \ '__| __| | |   | '_ \ / _` + "`" + ` | | '_ \
 | |__|  __/ |  | |_| | |___| | | | (_| | | | | |
  \____\___|_|   \__|_|\____|_| |_|\__,_|_|_| |_|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Signed Certificate Service - Version %s\x1b[0m\n\n", Version)
}
