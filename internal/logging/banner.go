package logging

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI color codes.
const (
	reset = "\033[0m"
	bold  = "\033[1m"
	cyan  = "\033[36m"
	dim   = "\033[2m"
)

var logoLines = [6]string{
	` ____ _____ ____             __ `,
	`|  _ \_   _/ ___|___  _ __  / _|`,
	`| |_) || || |   / _ \| '_ \| |_ `,
	`|  _ < | || |__| (_) | | | |  _|`,
	`|_| \_\|_| \____\___/|_| |_|_|  `,
	`                                `,
}

// PrintBanner prints the RTConf ASCII art logo followed by version,
// listen address and the active store backend. Colors are used only
// when stderr is a TTY.
func PrintBanner(ver, addr, storeType string) {
	color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	for i := 0; i < 6; i++ {
		if color {
			fmt.Fprintf(os.Stderr, "%s%s%s\n", bold+cyan, logoLines[i], reset)
		} else {
			fmt.Fprintln(os.Stderr, logoLines[i])
		}
	}

	if color {
		fmt.Fprintf(os.Stderr, "\n  %sversion%s %s   %saddr%s %s   %sstore%s %s\n\n",
			dim, reset, ver, dim, reset, addr, dim, reset, storeType)
	} else {
		fmt.Fprintf(os.Stderr, "\n  version %s   addr %s   store %s\n\n", ver, addr, storeType)
	}
}
