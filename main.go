package main

import "github.com/fulmenhq/leakhook/cmd"

func main() {
	cmd.Execute()
}
