package main

import "github.com/andrewyernau/rookt/cmd"

func main() {
	cmd.Execute()
}
