package main

import "github.com/flashimg/fimg/cmd/fimg/cmd"

func main() {
	cmd.Execute()
}
