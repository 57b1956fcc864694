// Package main - tinyyolo command line: decode captured grid outputs, benchmark decoding and
// run detection through ONNX Runtime.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
