package main

import "github.com/diogotoporcov/Finder2/cmd"

func main() {
	cmd.Execute()
}
