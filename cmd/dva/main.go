package main

import (
	"os"

	"github.com/wonny/dva-forecast/cmd/dva/commands"
)

// main is the entry point for the DVA forecast CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/dva [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
