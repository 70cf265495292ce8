package main

import "github.com/ozanturksever/corofleet/cmd/corofleet/cmd"

func main() {
	cmd.Execute()
}
