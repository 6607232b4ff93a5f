package main

import "github.com/samsaffron/chatstream/cmd"

func main() {
	cmd.Execute()
}
