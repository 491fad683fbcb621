package main

import "github.com/audiolibrelab/whistle/cmd"

func main() {
	cmd.Execute()
}
