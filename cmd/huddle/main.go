package main

import "github.com/nfrund/huddle/cmd/huddle/cmd"

func main() {
	cmd.Execute()
}
