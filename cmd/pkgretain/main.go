package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/blackwell-systems/pkgretain/internal/app"
	"github.com/blackwell-systems/pkgretain/internal/command"
)

func main() {
	if err := app.Execute(); err != nil {
		// The child process or command already reported its failure.
		var exitErr *command.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
