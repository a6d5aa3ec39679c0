package main

import (
	"context"

	"github.com/pkg/errors"
)

func main() {
	app := mustBootstrapSortingAPI()
	defer app.Close()

	if err := app.Run(); err != nil && !errors.Is(err, context.Canceled) {
		app.log.Error().Err(err).Msg("sorting-api stopped")
		panic(err)
	}
	app.log.Info().Msg("sorting-api stopped")
}
