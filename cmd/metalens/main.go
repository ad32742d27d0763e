// Package main provides the metalens CLI.
package main

import "github.com/mesh-intelligence/metalens/internal/cli"

func main() {
	cli.Execute()
}
