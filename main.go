package main

import "github.com/tinyagi/tinyagi/cmd"

func main() {
	cmd.Execute()
}
