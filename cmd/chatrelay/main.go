// Package main provides the entry point for the chatrelay CLI.
package main

import (
	"fmt"
	"os"

	"github.com/chatrelay/chatrelay/cmd/chatrelay/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
