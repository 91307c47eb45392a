// Package main is the single-binary entrypoint for Lockup.
// Lockup is a self-hosted lock-task and time-accounting engine.
package main

import "github.com/lockup-labs/lockup/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
