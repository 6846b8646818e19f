package main

import "trusight/cmd"

func main() {
	cmd.Execute()
}
