// The main package for the boardwatch executable.
package main

import (
	"github.com/JakeFAU/boardwatch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
