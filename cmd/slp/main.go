package main

import (
	"github.com/agenthands/slp/cmd/slp/commands"
)

func main() {
	commands.Execute()
}
