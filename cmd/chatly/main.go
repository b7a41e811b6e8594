package main

import "chatly/internal/cli"

func main() {
	cli.Execute()
}
