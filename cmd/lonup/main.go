package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/lonhq/lonup/internal/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := cmd.Execute(version, commit, date)
	if err == nil {
		return
	}

	var exitErr *cmd.ExitError
	if errors.As(err, &exitErr) {
		// The command already reported the outcome; just carry the code.
		os.Exit(exitErr.Code)
	}

	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
