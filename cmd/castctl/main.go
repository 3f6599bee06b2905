package main

import (
	"fmt"
	"os"

	"github.com/cablecast/cablecast/cmd/castctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "castctl: %v\n", err)
		os.Exit(1)
	}
}
