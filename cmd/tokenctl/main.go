// Command tokenctl mints, verifies and inspects tokens with a goToken engine
// built from a YAML config and a key directory.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("execution failed")
		os.Exit(1)
	}
}
