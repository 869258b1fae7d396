package main

import (
	"stat-arb-signals/internal/cli"
)

func main() {
	cli.Execute()
}
