package main

import "rezgo/internal/cli"

func main() {
	cli.Execute()
}
