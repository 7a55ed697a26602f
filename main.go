// The main package for the lenscrawl executable.
package main

import (
	"github.com/Jester6136/google-lens-crawl/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
