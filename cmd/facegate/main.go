package main

import "github.com/ayusman/facegate/internal/cli"

func main() {
	cli.Execute()
}
