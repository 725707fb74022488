// The main package for the pokefetch executable.
package main

import (
	"os"

	"github.com/Cyphercomp/pokefetch/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
