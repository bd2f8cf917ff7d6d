// Command cdrctl runs the trial diversity pipeline from the command line.
//
// Trials are read as JSON objects from a file argument or stdin. Scoring
// needs a model: either a remote predictor (--predictor-url) or a JSON file
// of fixed predictions keyed by target (--predictions).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "cdrctl:", err)
		stop()
		os.Exit(1)
	}
}
