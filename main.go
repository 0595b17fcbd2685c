package main

import "github.com/marketgate/mp-gateway/cmd"

func main() {
	cmd.Execute()
}
