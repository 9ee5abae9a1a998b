package main

import "bugtriage/cmd"

func main() {
	cmd.Execute()
}
