// Command teleop-sim runs teleoperation sessions over an emulated network link
// and sweeps link conditions to measure their effect on delivery.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
