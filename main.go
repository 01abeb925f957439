package main

import "github.com/tablechat/tablechat/cmd"

func main() {
	cmd.Execute()
}
