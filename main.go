package main

import (
	"github.com/osvhub/osv-discovery/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
