package main

import "palletroute/cmd/palletroute/commands"

func main() {
	commands.Execute()
}
