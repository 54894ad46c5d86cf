// Package main is the entry point for the EnjinMel SMTP relay.
package main

import (
	"os"

	"github.com/shineum/enjinmel-relay/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
