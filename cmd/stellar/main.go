package main

import (
	"fmt"
	"os"

	"github.com/gil0mendes/Stellar/cmd/stellar/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stellar: %v\n", err)
		os.Exit(1)
	}
}
