package main

import "stocks-trader/cmd"

func main() {
	cmd.Execute()
}
