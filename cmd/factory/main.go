package main

import "github.com/mvp-joe/code-factory/internal/cli"

func main() {
	cli.Execute()
}
