package main

import "github.com/custodia-labs/nextcloud-go/internal/cli"

func main() {
	cli.Execute()
}
