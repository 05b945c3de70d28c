package main

import "github.com/tuannm99/geovec/cmd/geovec/cmd"

func main() {
	cmd.Execute()
}
