package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// A cancelled context means the operator interrupted a foreground
		// daemon run; the signal already said everything.
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "snatcher:", err)
		os.Exit(1)
	}
}
