// probecore - command-line tool for driving an in-circuit debug probe's
// target abstraction and flash programming engine.
//
// It attaches to a microcontroller through a debug probe, reads and writes
// memory, and erases or programs flash through the family driver
// registered for the named board, over a serial link or a TCP bridge.
package main

import (
	"fmt"
	"os"

	"github.com/blackprobe/probecore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
