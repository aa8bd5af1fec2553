// The main package for the recipe-harvester executable.
package main

import (
	"github.com/JakeFAU/recipe-harvester/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
