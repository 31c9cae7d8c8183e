package main

import (
	"fmt"
	"os"

	"github.com/abdidvp/layerfix/internal/adapters/inbound/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "layerfix:", err)
		os.Exit(1)
	}
}
