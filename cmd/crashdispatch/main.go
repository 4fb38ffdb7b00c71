package main

import "github.com/strongdm/crashdispatch/internal/cli"

func main() {
	cli.Execute()
}
