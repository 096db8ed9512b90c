package main

import "github.com/climadw/climadw/cmd"

func main() {
	cmd.Execute()
}
