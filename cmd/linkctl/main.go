package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/edgelink/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("linkctl")
		os.Exit(1)
	}
}
