package main

import "opswatch/internal/cli"

func main() {
	cli.Execute()
}
