package main

import "github.com/tessro/verse/internal/cli"

func main() {
	cli.Execute()
}
