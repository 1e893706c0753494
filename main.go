// The main package for the crawl-webhooks executable.
package main

import (
	"github.com/JakeFAU/crawl-webhooks/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
