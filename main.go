package main

import "github.com/pders01/verz/cmd"

func main() {
	cmd.Execute()
}
