package main

import "github.com/use-agent/harvest/cmd/harvest/cmd"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	cmd.Version = version
	cmd.Execute()
}
