package main

import "dreamnet/cmd"

func main() {
	cmd.Execute()
}
