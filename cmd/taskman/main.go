package main

import (
	"os"

	"github.com/hitoshi/taskman/internal/app"
)

func main() {
	os.Exit(app.Main())
}
