// Package main is the entrypoint for statusctl.
package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/marcleai/statusboard/internal/cli"
	"github.com/marcleai/statusboard/internal/redact"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: redact.NewWriter(os.Stderr)}).
		Level(zerolog.WarnLevel).
		With().
		Timestamp().
		Logger()

	if err := cli.NewRootCommand(cli.Options{Logger: log}).Execute(); err != nil {
		os.Exit(1)
	}
}
