package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"hipot/internal/daemonrun"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		var exitErr *daemonrun.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
