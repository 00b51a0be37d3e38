package main

import "github.com/hildam/fin-flow-go/cmd"

func main() {
	cmd.Execute()
}
