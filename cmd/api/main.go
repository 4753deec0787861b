package main

import "cybertrainer/cmd/api/cmd"

func main() {
	cmd.Execute()
}
