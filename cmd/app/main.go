package main

import "celebdetect/internal/cli"

func main() {
	cli.Execute()
}
