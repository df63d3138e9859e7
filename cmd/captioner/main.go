package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"captioner/internal/services"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, formatError(err))
		}
		os.Exit(1)
	}
}

// formatError renders the one-line failure report: error (<kind>): <message>.
func formatError(err error) string {
	return fmt.Sprintf("error (%s): %v", services.Kind(err), err)
}
