package main

import (
	"os"

	"metadata-enricher/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
