package main

import "valetbench/cmd"

func main() {
	cmd.Execute()
}
