package main

import (
	"gitlab.com/grcflow/grcflow/server/commands"
)

func main() {
	commands.Execute()
}
