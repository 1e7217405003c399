// Command storagegate inspects and simulates the storage permission gate.
package main

import (
	"fmt"
	"os"

	"github.com/modelsaur/storagegate/cmd/storagegate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
