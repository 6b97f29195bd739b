package main

import (
	"os"

	"github.com/gustavo/insight-cli/internal/app"
)

func main() {
	os.Exit(app.NewRunner().Run(os.Args[1:]))
}
