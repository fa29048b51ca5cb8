package main

import "github.com/carelink/engage/cmd"

func main() {
	cmd.Execute()
}
