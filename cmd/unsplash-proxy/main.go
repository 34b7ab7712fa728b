// Command unsplash-proxy serves the Unsplash client over HTTP and offers a
// command-line search.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
