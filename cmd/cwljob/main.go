// cwljob is a command-line client for a remote compute-job service: bring a
// service up or down, submit workflow jobs, poll their state, and fetch
// outputs.
package main

import (
	"log/slog"
	"os"

	"cwlclient/cmd/cwljob/cmd"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
