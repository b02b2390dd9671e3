package main

import "github.com/pricehawk/pricehawk-engine/cmd"

func main() {
	cmd.Execute()
}
