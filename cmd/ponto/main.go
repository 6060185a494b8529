/*
main.go - Application entry point

COMMANDS:
  ponto serve                                   Run the HTTP API
  ponto balance --user U                        Print a user's time bank
  ponto export --user U --from D --to D         Summaries and total for a range

CONFIGURATION:
  ponto.toml (see config package), then PONTO_* / MONGODB_* environment
  variables, then command-line flags.
*/
package main

import (
	"os"

	"github.com/edufeq03/app-ponto-sub000/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
