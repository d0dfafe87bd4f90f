package main

import "github.com/Vr3n/crown-vitality-research/internal/cli"

func main() {
	cli.Execute()
}
