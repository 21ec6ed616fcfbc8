// Command adtester drives the mediator from the keyboard: 's' requests a
// rewarded ad, 'c' checks whether any network is ready. Every notification
// the mediator publishes is logged.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
