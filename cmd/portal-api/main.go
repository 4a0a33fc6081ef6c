package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

func main() {
	_ = godotenv.Load()

	app := mustBootstrapPortalAPI()
	defer app.Close()

	if err := app.Run(); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
