package main

import "github.com/vietddude/chainmetrics/internal/cli"

func main() {
	cli.Execute()
}
