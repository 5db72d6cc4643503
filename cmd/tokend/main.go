package main

import (
	"github.com/cloudbind/tokend/internal/cli"
)

func main() {
	cli.Execute()
}
