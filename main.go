package main

import "github.com/mt4110/mvimg/cmd"

func main() {
	cmd.Execute()
}
