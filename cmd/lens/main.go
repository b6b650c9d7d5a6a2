package main

import "lens/internal/cli"

func main() {
	cli.Execute()
}
